// Command storefront drives the cart and checkout controller against a
// running API server from the command line.
//
//	storefront [flags] show
//	storefront [flags] add <productId> <name> <price>
//	storefront [flags] set <productId> <quantity>
//	storefront [flags] inc|dec|remove <productId>
//	storefront [flags] checkout
//	storefront [flags] orders
//	storefront [flags] deliveries [orderId]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/client"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/delivery"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storefront"
)

type options struct {
	api      string
	token    string
	dir      string
	timeout  time.Duration
	address  string
	payment  string
	gcash    string
	delivery string
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		var opts options
		fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
		fs.StringVar(&opts.api, "api", envOr("STOREFRONT_API", "http://localhost:8080"), "API base URL")
		fs.StringVar(&opts.token, "token", os.Getenv("STOREFRONT_TOKEN"), "bearer token; empty shops as a guest")
		fs.StringVar(&opts.dir, "dir", defaultDir(), "directory holding the guest cart")
		fs.DurationVar(&opts.timeout, "timeout", storefront.DefaultTimeout, "bound on each store call")
		fs.StringVar(&opts.address, "address", "", "checkout: delivery address")
		fs.StringVar(&opts.payment, "payment", string(order.PaymentCOD), "checkout: COD or GCash")
		fs.StringVar(&opts.gcash, "gcash", "", "checkout: GCash number")
		fs.StringVar(&opts.delivery, "delivery", string(delivery.TypeInHouse), "checkout: pickup, in-house or third-party")
		if err := fs.Parse(os.Args[1:]); err != nil {
			return err
		}
		if fs.NArg() == 0 {
			fs.Usage()
			return errors.New("command required")
		}

		api, err := client.New(opts.api, client.WithTracerProvider(m.TracerProvider()))
		if err != nil {
			return err
		}
		c := storefront.New(api, storefront.NewFileGuestStore(opts.dir),
			storefront.WithLogger(lg),
			storefront.WithTimeout(opts.timeout),
			storefront.WithSubmitLock(),
		)
		defer c.Close()

		if opts.token != "" {
			id, err := auth.IdentityFromToken(opts.token)
			if err != nil {
				return errors.Wrap(err, "read token")
			}
			if err := c.Login(ctx, id, opts.token); err != nil {
				lg.Warn("Guest cart not merged", zap.Error(err))
			}
		} else if err := c.Start(ctx); err != nil {
			return err
		}

		return run(ctx, c, opts, fs.Args(), os.Stdout)
	})
}

func run(ctx context.Context, c *storefront.Controller, opts options, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	need := func(n int) error {
		if len(rest) < n {
			return errors.Errorf("%s: %d argument(s) required", cmd, n)
		}
		return nil
	}

	var p *storefront.Persistence
	switch cmd {
	case "show":
	case "add":
		if err := need(3); err != nil {
			return err
		}
		price, err := decimal.NewFromString(rest[2])
		if err != nil {
			return errors.Wrap(err, "parse price")
		}
		p = c.AddItem(product.Product{ID: rest[0], Name: rest[1], Price: price})
	case "set":
		if err := need(2); err != nil {
			return err
		}
		qty, err := strconv.Atoi(rest[1])
		if err != nil {
			return errors.Wrap(err, "parse quantity")
		}
		p = c.SetQuantity(rest[0], qty)
	case "inc", "dec", "remove":
		if err := need(1); err != nil {
			return err
		}
		switch cmd {
		case "inc":
			p = c.Increment(rest[0])
		case "dec":
			p = c.Decrement(rest[0])
		default:
			p = c.RemoveLine(rest[0])
		}
	case "checkout":
		c.SetAddress(opts.address)
		c.SetPaymentMethod(order.PaymentMethod(opts.payment))
		c.SetGCashNumber(opts.gcash)
		c.SetDeliveryType(delivery.Type(opts.delivery))
		o, err := c.PlaceOrder(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "order %s placed, total %s\n", o.ID, o.Total.StringFixed(2))
		return nil
	case "orders":
		printOrders(out, c.Snapshot().Orders)
		return nil
	case "deliveries":
		focus := ""
		if len(rest) > 0 {
			focus = rest[0]
		}
		view, err := c.Deliveries(ctx, focus)
		printDeliveries(out, view)
		return err
	default:
		return errors.Errorf("unknown command %q", cmd)
	}

	if p != nil {
		if err := p.Wait(ctx); err != nil {
			return errors.Wrap(err, "save cart")
		}
	}
	printCart(out, c.Snapshot())
	return nil
}

func printCart(out io.Writer, s storefront.State) {
	who := "guest"
	if !s.Identity.IsZero() {
		who = s.Identity.UserID
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "cart of %s\n", who)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tNAME\tPRICE\tQTY\tSUBTOTAL")
	for _, l := range s.Lines {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			l.ProductID, l.Name, l.UnitPrice.StringFixed(2), l.Quantity, l.Subtotal().StringFixed(2))
	}
	_, _ = fmt.Fprintf(tw, "\t\t\tTOTAL\t%s\n", s.Total.StringFixed(2))
	_ = tw.Flush()
}

func printOrders(out io.Writer, orders []order.Order) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ORDER\tCREATED\tSTATUS\tPAYMENT\tTOTAL")
	for _, o := range orders {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.CreatedAt.Format(time.DateTime), o.Status, o.PaymentMethod, o.Total.StringFixed(2))
	}
	_ = tw.Flush()
}

func printDeliveries(out io.Writer, view storefront.DeliveryView) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DELIVERY\tORDER\tSTATUS\tTYPE\tDRIVER")
	for _, d := range view.Deliveries {
		mark := ""
		if view.Focus != nil && view.Focus.ID == d.ID {
			mark = " *"
		}
		_, _ = fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n", d.ID, mark, d.OrderID, d.Status, d.Type, d.DriverID)
	}
	_ = tw.Flush()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "storefront")
	}
	return ".storefront"
}
