package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	productsFile string
	jwtSecret    string
	tokenUser    string
	tokenRole    string
	tokenTTL     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "path to products JSON file; empty uses the bundled catalog")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret to mint a development token with (or STORE_JWT_SECRET env)")
	flag.StringVar(&opts.tokenUser, "token-user", "dev-user", "user id of the development token")
	flag.StringVar(&opts.tokenRole, "token-role", auth.RoleUser, "role of the development token")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of the development token")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("STORE_JWT_SECRET")
	}

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, postgres.NewProductRepository(pool), opts.productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if opts.jwtSecret != "" {
		token, err := auth.NewTokens([]byte(opts.jwtSecret)).Issue(auth.Identity{
			UserID: opts.tokenUser,
			Role:   opts.tokenRole,
		}, opts.tokenTTL)
		if err != nil {
			return errors.Wrap(err, "issue token")
		}
		lg.Info("Development token issued",
			zap.String("user_id", opts.tokenUser),
			zap.String("role", opts.tokenRole),
			zap.Duration("ttl", opts.tokenTTL),
		)
		fmt.Println(token)
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, w product.Writer, path string) error {
	var (
		products []product.Product
		err      error
	)
	if path == "" {
		lg.Info("Reading bundled catalog")
		products, err = product.Decode(bytes.NewReader(db.Catalog))
	} else {
		lg.Info("Reading products file", zap.String("path", path))
		products, err = product.LoadFile(path)
	}
	if err != nil {
		return err
	}

	lg.Info("Upserting products", zap.Int("count", len(products)))
	if err := w.Upsert(ctx, products); err != nil {
		return err
	}
	for _, p := range products {
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}
