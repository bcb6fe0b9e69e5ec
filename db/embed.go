// Package db embeds the database schema and the default product catalog.
package db

import _ "embed"

// Schema is the idempotent DDL for products, carts, orders and deliveries.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the bundled product catalog, used when no catalog file is
// given.
//
//go:embed seed/products.json
var Catalog []byte
