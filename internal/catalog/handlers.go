package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes catalog lookups over HTTP.
type Handler struct {
	Svc *Service
}

// Get resolves a product by code or barcode.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	code := chi.URLParam(r, "code")
	product, err := h.Svc.Lookup(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load product", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"code":         product.Code,
		"description":  product.Description,
		"regularPrice": product.RegularPrice,
		"pairPrice":    product.PairPrice,
		"method":       product.Method.String(),
	})
}
