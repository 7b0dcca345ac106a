// Package api is the console's only network component: a typed client for the /api REST backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/client/credstore"
	"github.com/and161185/retail-desk/internal/convert"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

// DefaultTimeout bounds every request that does not configure its own.
const DefaultTimeout = 15 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL   string // e.g. http://localhost:8080/api
	Timeout   time.Duration
	UserAgent string
}

// TokenSource supplies the bearer token; an empty string sends no Authorization header.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed TokenSource.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type storeTokens struct{ s credstore.Store }

func (t storeTokens) Token() string {
	sess, err := t.s.Load()
	if err != nil || sess == nil {
		return ""
	}
	return sess.Token
}

// TokensFrom reads the token from the credential store on every request.
func TokensFrom(s credstore.Store) TokenSource { return storeTokens{s: s} }

// Client issues typed calls against the backend.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
	ua      string
	log     *zap.Logger
}

// New builds a Client. A nil tokens source sends unauthenticated requests.
func New(cfg Config, tokens TokenSource, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "rmsctl"
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: u, http: &http.Client{}, tokens: tokens, timeout: cfg.Timeout, ua: cfg.UserAgent, log: log}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends one request and returns the raw success body. It never retries.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, &APIError{Kind: KindPrecondition, Message: "encode request: " + err.Error(), Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), body)
	if err != nil {
		return nil, transportError(err)
	}
	reqID := uuid.Must(uuid.NewV4()).String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("X-Request-ID", reqID)
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api", zap.String("method", method), zap.String("path", path),
			zap.String("request_id", reqID), zap.Error(err))
		return nil, transportError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.log.Debug("api", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("dur", time.Since(start)),
		zap.String("request_id", reqID))
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}
	return data, nil
}

// decode fills out from data; an empty body (e.g. 204) leaves the zero value.
func decode(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{Kind: KindServer, Message: "unexpected response: " + err.Error(), Err: err}
	}
	return nil
}

func requireWholesaler(id int64) error {
	if id <= 0 {
		return preconditionError(errs.ErrSessionMissing)
	}
	return nil
}

func pageQuery(wholesalerID int64, page model.PageRequest) url.Values {
	q := url.Values{}
	q.Set("wholesalerId", strconv.FormatInt(wholesalerID, 10))
	q.Set("page", strconv.Itoa(page.Index))
	if page.Size > 0 {
		q.Set("size", strconv.Itoa(page.Size))
	}
	return q
}

// --- Auth ---

// Login exchanges credentials for a token and identity.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/auth/login", nil, convert.LoginRequest{Email: email, Password: password})
	if err != nil {
		return model.LoginResult{}, err
	}
	var out convert.LoginResponse
	if err := decode(data, &out); err != nil {
		return model.LoginResult{}, err
	}
	if out.Token == "" {
		return model.LoginResult{}, &APIError{Kind: KindServer, Message: "login response carried no token"}
	}
	return convert.FromLoginResponse(out), nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/register", nil, convert.ToRegisterRequest(req))
	return err
}

// --- Products ---

func (c *Client) listProducts(ctx context.Context, q url.Values) (model.Page[model.Product], error) {
	data, err := c.do(ctx, http.MethodGet, "/products", q, nil)
	if err != nil {
		return model.Page[model.Product]{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.EmptyPage[model.Product](), nil
	}
	p, err := convert.DecodeProductPage(data)
	if err != nil {
		return model.Page[model.Product]{}, &APIError{Kind: KindServer, Message: "unexpected response: " + err.Error(), Err: err}
	}
	return p, nil
}

// ListProducts returns an unfiltered page. sort is "field" or "field,desc"; empty uses the server default.
func (c *Client) ListProducts(ctx context.Context, wholesalerID int64, page model.PageRequest, sort string) (model.Page[model.Product], error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return model.Page[model.Product]{}, err
	}
	q := pageQuery(wholesalerID, page)
	if sort != "" {
		q.Set("sort", sort)
	}
	return c.listProducts(ctx, q)
}

// SearchProducts returns a page matching term.
func (c *Client) SearchProducts(ctx context.Context, wholesalerID int64, term string, page model.PageRequest) (model.Page[model.Product], error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return model.Page[model.Product]{}, err
	}
	q := pageQuery(wholesalerID, page)
	q.Set("search", term)
	return c.listProducts(ctx, q)
}

// ProductsByCategory returns a page of one category.
func (c *Client) ProductsByCategory(ctx context.Context, wholesalerID int64, category string, page model.PageRequest) (model.Page[model.Product], error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return model.Page[model.Product]{}, err
	}
	q := pageQuery(wholesalerID, page)
	q.Set("category", category)
	return c.listProducts(ctx, q)
}

func (c *Client) productCall(ctx context.Context, method, path string, q url.Values, in any) (*model.Product, error) {
	data, err := c.do(ctx, method, path, q, in)
	if err != nil {
		return nil, err
	}
	var out convert.Product
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	p, err := convert.FromProduct(out)
	if err != nil {
		return nil, &APIError{Kind: KindServer, Message: "unexpected response: " + err.Error(), Err: err}
	}
	return &p, nil
}

func productPath(id int64) string { return "/products/" + strconv.FormatInt(id, 10) }

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return c.productCall(ctx, http.MethodGet, productPath(id), nil, nil)
}

// CreateProduct submits p without id or version.
func (c *Client) CreateProduct(ctx context.Context, wholesalerID int64, p model.Product) (*model.Product, error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return nil, err
	}
	p.ID, p.Version = 0, 0
	p.WholesalerID = wholesalerID
	q := url.Values{"wholesalerId": {strconv.FormatInt(wholesalerID, 10)}}
	return c.productCall(ctx, http.MethodPost, "/products", q, convert.ToProduct(p))
}

// UpdateProduct replaces product p.ID. A nil image url is sent as "".
func (c *Client) UpdateProduct(ctx context.Context, wholesalerID int64, p model.Product) (*model.Product, error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return nil, err
	}
	if p.ID <= 0 {
		return nil, preconditionError(errors.New("product id is required"))
	}
	if p.ImageURL == nil {
		empty := ""
		p.ImageURL = &empty
	}
	p.WholesalerID = wholesalerID
	q := url.Values{"wholesalerId": {strconv.FormatInt(wholesalerID, 10)}}
	return c.productCall(ctx, http.MethodPut, productPath(p.ID), q, convert.ToProduct(p))
}

// DeleteProduct removes a product and returns the server's confirmation message.
func (c *Client) DeleteProduct(ctx context.Context, id int64) (string, error) {
	data, err := c.do(ctx, http.MethodDelete, productPath(id), nil, nil)
	if err != nil {
		return "", err
	}
	var out convert.Message
	if err := decode(data, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ToggleProductStatus sets the visibility flag.
func (c *Client) ToggleProductStatus(ctx context.Context, id int64, active bool) (*model.Product, error) {
	q := url.Values{"status": {strconv.FormatBool(active)}}
	return c.productCall(ctx, http.MethodPatch, productPath(id)+"/status", q, nil)
}

// Categories lists a wholesaler's categories. Never returns a nil slice on success.
func (c *Client) Categories(ctx context.Context, wholesalerID int64) ([]string, error) {
	if err := requireWholesaler(wholesalerID); err != nil {
		return nil, err
	}
	q := url.Values{"wholesalerId": {strconv.FormatInt(wholesalerID, 10)}}
	data, err := c.do(ctx, http.MethodGet, "/products/categories", q, nil)
	if err != nil {
		return nil, err
	}
	out := []string{}
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
