package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/backend-pos/internal/catalog"
	"github.com/noah-isme/backend-pos/internal/repo"
)

func main() {
	csvPath := flag.String("csv", "master.csv", "path to the product master CSV export")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	if err := repo.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *csvPath, err)
	}
	defer f.Close()

	products, err := catalog.ParseMasterCSV(f)
	if err != nil {
		log.Fatalf("Failed to parse master CSV: %v", err)
	}

	store := &repo.CatalogPostgres{Postgres: repo.NewPostgres(pool)}
	svc := &catalog.Service{Store: store}
	imported, err := svc.Import(ctx, products)
	if err != nil {
		log.Fatalf("Failed to import products: %v", err)
	}

	log.Printf("Imported %d products from %s", imported, *csvPath)
}
