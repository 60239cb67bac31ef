package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates no product matches the scanned code or barcode.
var ErrNotFound = errors.New("product not found")

// Store abstracts product master-data persistence.
type Store interface {
	GetByCode(ctx context.Context, code string) (Product, error)
	GetByBarcode(ctx context.Context, barcode string) (Product, error)
	Upsert(ctx context.Context, p Product) error
}

// Service resolves scanned input to products, with an optional read-through
// cache in front of the store.
type Service struct {
	Store Store
	Cache *Cache
}

// Lookup resolves a product code or one of its barcode aliases. The product
// code is tried first, matching how the till reads master data.
func (s *Service) Lookup(ctx context.Context, codeOrBarcode string) (Product, error) {
	if s == nil || s.Store == nil {
		return Product{}, errors.New("catalog service not configured")
	}
	key := NormalizeCode(codeOrBarcode)
	if key == "" {
		return Product{}, fmt.Errorf("empty code: %w", ErrNotFound)
	}

	if s.Cache != nil {
		var cached Product
		hit, err := s.Cache.GetJSON(ctx, cacheKey(key), &cached)
		if err == nil && hit {
			return cached, nil
		}
	}

	product, err := s.Store.GetByCode(ctx, key)
	if errors.Is(err, ErrNotFound) {
		product, err = s.Store.GetByBarcode(ctx, key)
	}
	if err != nil {
		return Product{}, err
	}

	if s.Cache != nil {
		_ = s.Cache.SetJSON(ctx, cacheKey(key), product)
	}
	return product, nil
}

// Import upserts a batch of products, returning how many were written.
func (s *Service) Import(ctx context.Context, products []Product) (int, error) {
	if s == nil || s.Store == nil {
		return 0, errors.New("catalog service not configured")
	}
	written := 0
	for _, p := range products {
		if p.Code == "" {
			continue
		}
		if err := s.Store.Upsert(ctx, p); err != nil {
			return written, fmt.Errorf("upsert %s: %w", p.Code, err)
		}
		written++
	}
	return written, nil
}

func cacheKey(code string) string {
	return "catalog:product:" + code
}

// MemoryStore is a mutex-guarded in-memory Store used for tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	byCode   map[string]Product
	aliasFor map[string]string
}

// NewMemoryStore returns an empty in-memory product store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode:   make(map[string]Product),
		aliasFor: make(map[string]string),
	}
}

// GetByCode returns the product registered under the given product code.
func (m *MemoryStore) GetByCode(_ context.Context, code string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byCode[NormalizeCode(code)]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// GetByBarcode resolves a barcode alias to its owning product.
func (m *MemoryStore) GetByBarcode(_ context.Context, barcode string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.aliasFor[NormalizeCode(barcode)]
	if !ok {
		return Product{}, ErrNotFound
	}
	p, ok := m.byCode[code]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// Upsert inserts or replaces a product and re-registers its barcode aliases.
func (m *MemoryStore) Upsert(_ context.Context, p Product) error {
	code := NormalizeCode(p.Code)
	if code == "" {
		return errors.New("product code required")
	}
	p.Code = code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byCode[code] = p
	for _, b := range p.Barcodes {
		if alias := NormalizeCode(b); alias != "" {
			m.aliasFor[alias] = code
		}
	}
	return nil
}
