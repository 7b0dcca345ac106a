package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/and161185/retail-desk/internal/client/catalog"
	"github.com/and161185/retail-desk/internal/client/forms"
	"github.com/and161185/retail-desk/internal/convert"
	"github.com/and161185/retail-desk/internal/model"
)

func (a *app) products(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage(a.errOut)
		return errUsage
	}
	if err := a.enter(productsPath); err != nil {
		return err
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return a.listProducts(ctx, rest)
	case "get":
		return a.getProduct(ctx, rest)
	case "create":
		return a.createProduct(ctx, rest)
	case "update":
		return a.updateProduct(ctx, rest)
	case "delete", "rm":
		return a.deleteProduct(ctx, rest)
	case "toggle":
		return a.toggleProduct(ctx, rest)
	}
	usage(a.errOut)
	return errUsage
}

func (a *app) newCatalog(ctx context.Context, pageSize int, sort string, opts catalog.Options) *catalog.Coordinator {
	opts.Context = ctx
	opts.PageSize = pageSize
	opts.Sort = sort
	opts.Logger = a.log
	opts.OnError = func(err error) {
		if a.sess.Expire(err) {
			fmt.Fprintln(a.errOut, "session expired, please log in again")
		}
	}
	return catalog.New(a.api, a.sess.AccountID, opts)
}

func (a *app) listProducts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products list", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	search := fs.String("search", "", "match name, description or sku")
	category := fs.String("category", catalog.AllCategories, "category filter")
	page := fs.Int("page", 1, "page number, 1-based")
	size := fs.Int("size", catalog.DefaultPageSize, "page size")
	sort := fs.String("sort", "", "sort key, e.g. price,desc")
	asJSON := fs.Bool("json", false, "print the page as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c := a.newCatalog(ctx, *size, *sort, catalog.Options{})
	defer c.Close()
	c.Apply(catalog.Filter{SearchText: *search, Category: *category, PageIndex: *page - 1, PageSize: *size})
	c.Wait()

	v := c.View()
	if v.Status == catalog.Failed {
		return v.Err
	}
	if *asJSON {
		printJSON(a.out, convert.ToPage(v.Page, convert.ToProduct))
		return nil
	}
	writeTable(a.out, v.Page)
	return nil
}

// writeTable prints one page of products followed by a page footer.
func writeTable(w io.Writer, p model.Page[model.Product]) {
	if p.Empty() {
		fmt.Fprintln(w, "no products")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKU\tNAME\tCATEGORY\tPRICE\tSTOCK\tUNIT\tACTIVE\tVER")
	for _, it := range p.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%t\t%d\n",
			it.ID, it.SKUCode, it.Name, it.Category, it.Price.StringFixed(2), it.StockQuantity, it.Unit, it.Active, it.Version)
	}
	_ = tw.Flush()
	pages := p.TotalPages
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(w, "page %d/%d, %d products\n", p.Index+1, pages, p.TotalItems)
}

func idFlag(fs *flag.FlagSet) *int64 { return fs.Int64("id", 0, "product id") }

// requireID accepts -id or a single positional argument.
func requireID(fs *flag.FlagSet, id *int64) (int64, error) {
	if *id == 0 && fs.NArg() == 1 {
		v, err := strconv.ParseInt(fs.Arg(0), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad product id %q", fs.Arg(0))
		}
		*id = v
	}
	if *id <= 0 {
		return 0, errors.New("need -id")
	}
	return *id, nil
}

func (a *app) getProduct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products get", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	idp := idFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(fs, idp)
	if err != nil {
		return err
	}
	p, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return a.check(err)
	}
	printJSON(a.out, convert.ToProduct(*p))
	return nil
}

// productFlags binds the editable product fields. Only flags given on the
// command line are applied to a form.
type productFlags struct {
	name, desc, category, price, sku, unit, image *string
	stock                                         *int
	active                                        *bool
}

func bindProductFlags(fs *flag.FlagSet) *productFlags {
	return &productFlags{
		name:     fs.String("name", "", "product name, 1-100 characters"),
		desc:     fs.String("desc", "", "description"),
		category: fs.String("category", "", "category"),
		price:    fs.String("price", "", "unit price, e.g. 42.50"),
		sku:      fs.String("sku", "", "SKU code"),
		unit:     fs.String("unit", "piece", "kg, liter, piece, box, packet, carton, dozen, gms or ml"),
		image:    fs.String("image", "", "image url"),
		stock:    fs.Int("stock", 0, "stock quantity"),
		active:   fs.Bool("active", true, "visible to buyers"),
	}
}

func (pf *productFlags) apply(fs *flag.FlagSet, f *forms.ProductForm) error {
	var perr error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			f.Name = *pf.name
		case "desc":
			f.Description = *pf.desc
		case "category":
			f.Category = *pf.category
		case "price":
			d, err := decimal.NewFromString(strings.TrimSpace(*pf.price))
			if err != nil {
				perr = &forms.ValidationError{Fields: map[string][]string{"price": {"price must be a number"}}}
				return
			}
			f.Price = d
		case "sku":
			f.SKUCode = *pf.sku
		case "unit":
			f.Unit = *pf.unit
		case "image":
			f.ImageURL = *pf.image
		case "stock":
			f.StockQuantity = *pf.stock
		case "active":
			f.Active = *pf.active
		}
	})
	return perr
}

func (a *app) createProduct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products create", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	pf := bindProductFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := forms.ProductForm{Unit: *pf.unit, Active: *pf.active, WholesalerID: a.sess.AccountID()}
	if err := pf.apply(fs, &f); err != nil {
		return err
	}
	if err := forms.Validate(f); err != nil {
		return err
	}
	p, err := a.api.CreateProduct(ctx, f.WholesalerID, f.Product())
	if err != nil {
		return a.check(err)
	}
	fmt.Fprintf(a.out, "created product %d\n", p.ID)
	printJSON(a.out, convert.ToProduct(*p))
	return nil
}

func (a *app) updateProduct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products update", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	idp := idFlag(fs)
	pf := bindProductFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(fs, idp)
	if err != nil {
		return err
	}
	cur, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return a.check(err)
	}
	f := forms.ProductFormFrom(*cur)
	if err := pf.apply(fs, &f); err != nil {
		return err
	}
	if err := forms.Validate(f); err != nil {
		return err
	}
	p, err := a.api.UpdateProduct(ctx, f.WholesalerID, f.Product())
	if err != nil {
		return a.check(err)
	}
	fmt.Fprintf(a.out, "updated product %d to version %d\n", p.ID, p.Version)
	return nil
}

func (a *app) deleteProduct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products delete", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	idp := idFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(fs, idp)
	if err != nil {
		return err
	}
	msg, err := a.api.DeleteProduct(ctx, id)
	if err != nil {
		return a.check(err)
	}
	if msg == "" {
		msg = "deleted"
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *app) toggleProduct(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products toggle", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	idp := idFlag(fs)
	active := fs.String("active", "", "true or false; flips the current state when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireID(fs, idp)
	if err != nil {
		return err
	}

	var want bool
	if *active == "" {
		cur, err := a.api.GetProduct(ctx, id)
		if err != nil {
			return a.check(err)
		}
		want = !cur.Active
	} else if want, err = strconv.ParseBool(*active); err != nil {
		return fmt.Errorf("bad -active %q", *active)
	}

	p, err := a.api.ToggleProductStatus(ctx, id, want)
	if err != nil {
		return a.check(err)
	}
	state := "inactive"
	if p.Active {
		state = "active"
	}
	fmt.Fprintf(a.out, "product %d is now %s\n", p.ID, state)
	return nil
}

func (a *app) categories(ctx context.Context) error {
	if err := a.enter(productsPath); err != nil {
		return err
	}
	cats, err := a.api.Categories(ctx, a.sess.AccountID())
	if err != nil {
		return a.check(err)
	}
	for _, c := range cats {
		fmt.Fprintln(a.out, c)
	}
	return nil
}
