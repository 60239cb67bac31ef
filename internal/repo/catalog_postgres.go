package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-pos/internal/catalog"
)

// CatalogPostgres stores the product master and its barcode aliases.
type CatalogPostgres struct {
	Postgres *Postgres
}

// GetByCode loads a product by its primary code.
func (c *CatalogPostgres) GetByCode(ctx context.Context, code string) (catalog.Product, error) {
	p, err := c.scanProduct(ctx, `SELECT code, description, regular_price, pair_price, method FROM products WHERE code = $1`, code)
	if err != nil {
		return catalog.Product{}, err
	}
	return c.attachBarcodes(ctx, p)
}

// GetByBarcode resolves a barcode alias to its product.
func (c *CatalogPostgres) GetByBarcode(ctx context.Context, barcode string) (catalog.Product, error) {
	p, err := c.scanProduct(ctx,
		`SELECT p.code, p.description, p.regular_price, p.pair_price, p.method
		 FROM products p
		 JOIN product_barcodes b ON b.product_code = p.code
		 WHERE b.barcode = $1`, barcode)
	if err != nil {
		return catalog.Product{}, err
	}
	return c.attachBarcodes(ctx, p)
}

// Upsert writes the product and replaces its barcode aliases.
func (c *CatalogPostgres) Upsert(ctx context.Context, p catalog.Product) error {
	tx, err := c.Postgres.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx,
		`INSERT INTO products (code, description, regular_price, pair_price, method)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (code) DO UPDATE
		 SET description = EXCLUDED.description,
		     regular_price = EXCLUDED.regular_price,
		     pair_price = EXCLUDED.pair_price,
		     method = EXCLUDED.method`,
		p.Code, p.Description, p.RegularPrice, p.PairPrice, p.Method.String()); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_barcodes WHERE product_code = $1`, p.Code); err != nil {
		return fmt.Errorf("clear barcodes: %w", err)
	}
	for _, barcode := range p.Barcodes {
		if barcode == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO product_barcodes (barcode, product_code) VALUES ($1, $2)
			 ON CONFLICT (barcode) DO UPDATE SET product_code = EXCLUDED.product_code`,
			barcode, p.Code); err != nil {
			return fmt.Errorf("insert barcode: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (c *CatalogPostgres) scanProduct(ctx context.Context, query, arg string) (catalog.Product, error) {
	var p catalog.Product
	var method string
	err := c.Postgres.Pool.QueryRow(ctx, query, arg).
		Scan(&p.Code, &p.Description, &p.RegularPrice, &p.PairPrice, &method)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrNotFound
		}
		return catalog.Product{}, fmt.Errorf("load product: %w", err)
	}
	p.Method = catalog.ParseMethod(method)
	return p, nil
}

func (c *CatalogPostgres) attachBarcodes(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	rows, err := c.Postgres.Pool.Query(ctx,
		`SELECT barcode FROM product_barcodes WHERE product_code = $1 ORDER BY barcode`, p.Code)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("load barcodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return catalog.Product{}, fmt.Errorf("scan barcode: %w", err)
		}
		p.Barcodes = append(p.Barcodes, b)
	}
	if err := rows.Err(); err != nil {
		return catalog.Product{}, fmt.Errorf("iterate barcodes: %w", err)
	}
	return p, nil
}
