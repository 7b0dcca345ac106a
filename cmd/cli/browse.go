package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/and161185/retail-desk/internal/client/catalog"
	"github.com/and161185/retail-desk/internal/client/session"
)

const browseHelp = `commands:
  search <text>   filter by name, description or sku
  cat <name>      filter by category, "all" clears it
  page <n>        jump to page n
  next | prev
  refresh
  categories
  help
  quit`

// browse is an interactive catalog session driven by lines on stdin.
func (a *app) browse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	size := fs.Int("size", catalog.DefaultPageSize, "page size")
	quiet := fs.Duration("quiet", catalog.DefaultQuietPeriod, "search debounce")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.ensureLogin(ctx, productsPath); err != nil {
		return err
	}

	c := a.newCatalog(ctx, *size, "", catalog.Options{QuietPeriod: *quiet})
	defer c.Close()
	stop := c.Subscribe(func(v catalog.View) {
		switch v.Status {
		case catalog.Ready:
			writeTable(a.out, v.Page)
		case catalog.Failed:
			fmt.Fprintf(a.out, "error: %s\n", v.Message)
		}
	})
	defer stop()

	c.Refresh()
	c.Wait()

	for {
		line, err := a.prompt("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(verb) {
		case "":
			continue
		case "quit", "exit", "q":
			c.Flush()
			c.Wait()
			return nil
		case "search", "s", "/":
			c.SetSearch(arg)
			continue
		case "cat", "category":
			c.SetCategory(arg)
		case "page":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				fmt.Fprintf(a.errOut, "bad page %q\n", arg)
				continue
			}
			c.SetPage(n - 1)
		case "next":
			v := c.View()
			if v.Status == catalog.Ready && v.Filter.PageIndex+1 >= v.Page.TotalPages {
				fmt.Fprintln(a.errOut, "already on the last page")
				continue
			}
			c.SetPage(c.Filter().PageIndex + 1)
		case "prev":
			idx := c.Filter().PageIndex
			if idx == 0 {
				fmt.Fprintln(a.errOut, "already on the first page")
				continue
			}
			c.SetPage(idx - 1)
		case "refresh", "r":
			c.Refresh()
		case "categories":
			if err := a.categories(ctx); err != nil {
				fmt.Fprintf(a.errOut, "error: %s\n", err)
			}
		case "help", "?":
			fmt.Fprintln(a.errOut, browseHelp)
			continue
		default:
			fmt.Fprintf(a.errOut, "unknown command %q, try help\n", verb)
			continue
		}
		c.Wait()

		if a.sess.State() == session.Anonymous {
			if err := a.ensureLogin(ctx, productsPath); err != nil {
				return err
			}
			c.Refresh()
			c.Wait()
		}
	}

	c.Flush()
	c.Wait()
	return nil
}
