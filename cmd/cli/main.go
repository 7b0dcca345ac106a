// Command rmsctl is the wholesaler console for the retail-desk backend.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/and161185/retail-desk/internal/client/api"
	"github.com/and161185/retail-desk/internal/client/credstore"
	"github.com/and161185/retail-desk/internal/client/forms"
	"github.com/and161185/retail-desk/internal/client/guard"
	"github.com/and161185/retail-desk/internal/client/session"
	"github.com/and161185/retail-desk/internal/config"
	"github.com/and161185/retail-desk/internal/crypto/clientcrypto"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	defaultAPI   = "http://localhost:8080/api"
	productsPath = session.DefaultLanding + "/products"
)

var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, `rmsctl: retail-desk wholesaler console
Usage:
  rmsctl [-api URL] [-timeout 15s] [-v] [-ephemeral] <cmd> [args]

Commands:
  version
  register   -username <name> -email <email> -password <pw> -phone <digits> [-role WHOLESALER|LOCAL_SELLER|SALESMAN]
             [-address ..] [-business ..] [-gst ..] [-shop ..] [-lat ..] [-lon ..]
  login      -email <email> [-password <pw>]        (prompts when -password is omitted)
  logout
  whoami
  products   list [-search s] [-category c] [-page n] [-size n] [-sort field[,desc]] [-json]
  products   get -id <id>
  products   create -name .. -category .. -price .. -sku .. [-stock n] [-unit piece] [-desc ..] [-image url] [-active=true]
  products   update -id <id> [same flags as create, only given ones change]
  products   delete -id <id>
  products   toggle -id <id> [-active true|false]  (flips when -active is omitted)
  categories
  browse     [-size n] [-quiet 400ms]               (interactive catalog)

Environment:
  RMS_API_URL                backend base url (default %s)
  RMS_CREDSTORE_PASSPHRASE   seal saved credentials with a passphrase instead of the local key file
`, defaultAPI)
}

// lockedWriter serializes writes coming from query goroutines and the prompt loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type app struct {
	api   *api.Client
	sess  *session.Controller
	guard *guard.Guard
	log   *zap.Logger

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// ttyFd is the descriptor of a terminal stdin, or -1.
	ttyFd        int
	readPassword func(fd int) ([]byte, error)

	mu    sync.Mutex
	route string
}

// Navigate records where the session controller sent the console.
func (a *app) Navigate(to string) {
	a.mu.Lock()
	a.route = to
	a.mu.Unlock()
	a.log.Debug("navigate", zap.String("to", to))
}

func (a *app) location() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.route
}

func newApp(apiURL string, timeout time.Duration, store credstore.Store, log *zap.Logger, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	a := &app{
		log:    log,
		in:     bufio.NewReader(stdin),
		out:    &lockedWriter{w: stdout},
		errOut: &lockedWriter{w: stderr},

		ttyFd:        -1,
		readPassword: term.ReadPassword,
	}
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.ttyFd = int(f.Fd())
	}
	cli, err := api.New(api.Config{BaseURL: apiURL, Timeout: timeout, UserAgent: "rmsctl/" + version}, api.TokensFrom(store), log)
	if err != nil {
		return nil, err
	}
	a.api = cli
	a.sess = session.New(store, cli, a, log)
	a.guard = guard.New(a.sess)
	a.sess.Hydrate()
	return a, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// run parses global flags and dispatches one command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	_ = config.LoadDotEnv()

	fs := flag.NewFlagSet("rmsctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	apiURL := fs.String("api", envOr("RMS_API_URL", defaultAPI), "backend base url")
	timeout := fs.Duration("timeout", api.DefaultTimeout, "per-request timeout")
	verbose := fs.Bool("v", false, "debug logging to stderr")
	ephemeral := fs.Bool("ephemeral", false, "keep the session in memory only")
	dir := fs.String("config", "", "credential directory (default $XDG_CONFIG_HOME/retail-desk)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		usage(stderr)
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "version" {
		fmt.Fprintf(stdout, "rmsctl %s (%s)\n", version, buildDate)
		return nil
	}

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log = l
		defer func() { _ = log.Sync() }()
	}

	var store credstore.Store
	if *ephemeral {
		store = credstore.NewMemoryStore()
	} else {
		fstore, err := sealedStore(*dir, os.Getenv("RMS_CREDSTORE_PASSPHRASE"))
		if err != nil {
			return fmt.Errorf("credential store: %w", err)
		}
		store = fstore
	}

	a, err := newApp(*apiURL, *timeout, store, log, stdin, stdout, stderr)
	if err != nil {
		return err
	}

	switch cmd {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		a.sess.Logout()
		fmt.Fprintln(a.out, "logged out")
		return nil
	case "whoami":
		return a.whoami()
	case "products":
		return a.products(ctx, rest)
	case "categories":
		return a.categories(ctx)
	case "browse":
		return a.browse(ctx, rest)
	}
	usage(stderr)
	return errUsage
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fail(os.Stderr, err)
		os.Exit(1)
	}
}

// ---- helpers ----

// sealedStore opens the credential directory with values sealed under the
// installation key, or under a passphrase-derived key when one is given.
func sealedStore(dir, passphrase string) (*credstore.FileStore, error) {
	fs := credstore.NewFileStore(dir)
	var (
		key []byte
		err error
	)
	if passphrase != "" {
		key, err = clientcrypto.KeyFromPassphrase(passphrase, filepath.Join(fs.Dir, "seal.salt"))
	} else {
		key, err = clientcrypto.LoadOrCreateKey(filepath.Join(fs.Dir, "seal.key"))
	}
	if err != nil {
		return nil, err
	}
	if fs.Cipher, err = clientcrypto.NewSealer(key); err != nil {
		return nil, err
	}
	return fs, nil
}

func fail(w io.Writer, err error) {
	var ae *api.APIError
	if errors.As(err, &ae) && ae.Status > 0 {
		fmt.Fprintf(w, "%s error (%d): %s\n", ae.Kind, ae.Status, ae.Message)
		return
	}
	fmt.Fprintln(w, err)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// prompt writes label to stderr and reads one line from stdin.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.errOut, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret reads a password without echo when stdin is a terminal.
func (a *app) secret(label string) (string, error) {
	if a.ttyFd < 0 {
		return a.prompt(label)
	}
	fmt.Fprint(a.errOut, label)
	b, err := a.readPassword(a.ttyFd)
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// check expires the session when the backend rejected the token.
func (a *app) check(err error) error {
	if err == nil {
		return nil
	}
	if a.sess.Expire(err) {
		return fmt.Errorf("session expired, log in again: %w", err)
	}
	return err
}

// enter runs the route guard for a protected command.
func (a *app) enter(path string) error {
	d := a.guard.Enter(path)
	switch d.Outcome {
	case guard.Render:
		return nil
	case guard.Redirect:
		return fmt.Errorf("%s requires a session, run `rmsctl login` first: %w", d.From, errs.ErrUnauthorized)
	}
	return errors.New("session is still loading")
}

// ---- auth commands ----

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		v, err := a.prompt("Email: ")
		if err != nil {
			return err
		}
		*email = v
	}
	if *password == "" {
		v, err := a.secret("Password: ")
		if err != nil {
			return err
		}
		*password = v
	}
	if err := a.sess.Login(ctx, forms.LoginForm{Email: *email, Password: *password}); err != nil {
		return err
	}
	s := a.sess.Session()
	fmt.Fprintf(a.out, "logged in as %s (%s), account %d\n", s.Identity.DisplayName, s.Identity.Role, s.Identity.AccountID)
	return nil
}

// ensureLogin prompts for credentials until the guard lets path render.
func (a *app) ensureLogin(ctx context.Context, path string) error {
	const attempts = 3
	for i := 0; i < attempts; i++ {
		d := a.guard.Enter(path)
		switch d.Outcome {
		case guard.Render:
			return nil
		case guard.Loading:
			return errors.New("session is still loading")
		}
		fmt.Fprintf(a.errOut, "login required for %s\n", d.From)
		email, err := a.prompt("Email: ")
		if err != nil {
			return err
		}
		pw, err := a.secret("Password: ")
		if err != nil {
			return err
		}
		if err := a.sess.Login(ctx, forms.LoginForm{Email: email, Password: pw}); err != nil {
			fmt.Fprintf(a.errOut, "login failed: %s\n", err)
			continue
		}
		if a.location() != path {
			a.log.Debug("login landed elsewhere", zap.String("route", a.location()))
		}
	}
	if a.guard.Enter(path).Outcome == guard.Render {
		return nil
	}
	return fmt.Errorf("login failed %d times: %w", attempts, errs.ErrUnauthorized)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	var f forms.RegisterForm
	fs.StringVar(&f.Username, "username", "", "display name")
	fs.StringVar(&f.Email, "email", "", "account email")
	fs.StringVar(&f.Password, "password", "", "password, at least 6 characters")
	fs.StringVar(&f.Phone, "phone", "", "phone, at least 10 digits")
	fs.StringVar(&f.Role, "role", string(model.RoleWholesaler), "WHOLESALER, LOCAL_SELLER or SALESMAN")
	fs.StringVar(&f.Address, "address", "", "address")
	fs.StringVar(&f.BusinessName, "business", "", "business name (wholesaler)")
	fs.StringVar(&f.GSTNumber, "gst", "", "GST number (wholesaler)")
	fs.StringVar(&f.ShopName, "shop", "", "shop name (local seller)")
	lat := fs.Float64("lat", 0, "latitude (local seller)")
	lon := fs.Float64("lon", 0, "longitude (local seller)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "lat":
			f.Latitude = lat
		case "lon":
			f.Longitude = lon
		}
	})
	f.Role = strings.ToUpper(strings.TrimSpace(f.Role))

	if err := a.sess.Register(ctx, f); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s, now run: rmsctl login -email %s\n", f.Email, f.Email)
	return nil
}

func (a *app) whoami() error {
	s := a.sess.Session()
	if s == nil {
		return fmt.Errorf("not logged in: %w", errs.ErrUnauthorized)
	}
	printJSON(a.out, struct {
		AccountID int64  `json:"accountId"`
		Name      string `json:"name"`
		Role      string `json:"role"`
	}{s.Identity.AccountID, s.Identity.DisplayName, string(s.Identity.Role)})
	return nil
}
