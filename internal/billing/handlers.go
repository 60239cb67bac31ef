package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// Handler wires the billing service to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type scanPayload struct {
	Code string `json:"code" validate:"required"`
	Qty  int    `json:"qty" validate:"omitempty,gt=0"`
}

type couponPayload struct {
	Type   string `json:"type" validate:"required"`
	Code   string `json:"code"`
	Amount int64  `json:"amount" validate:"gte=0"`
}

type closePayload struct {
	Payment int64 `json:"payment" validate:"gte=0"`
}

// Create opens a new bill.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	bill, err := h.Svc.Open(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, billView(bill))
}

// Get returns the bill with its lines, coupons and current totals.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	bill, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, billView(bill))
}

// Scan adds quantity of a scanned product to the bill.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	billID := chi.URLParam(r, "id")
	var payload scanPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Code = strings.TrimSpace(payload.Code)
	if payload.Qty == 0 {
		payload.Qty = 1
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	added, err := h.Svc.AddQuantity(r.Context(), billID, payload.Code, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lines := make([]CartLine, 0, len(added))
	lines = append(lines, added...)
	common.Data(w, http.StatusOK, map[string]any{"lines": lines})
}

// Void voids a single bill line.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	billID := chi.URLParam(r, "id")
	lineID := chi.URLParam(r, "lineId")
	if err := h.Svc.VoidLine(r.Context(), billID, lineID); err != nil {
		h.writeError(w, err)
		return
	}
	bill, err := h.Svc.Get(r.Context(), billID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, billView(bill))
}

// AddCoupon attaches a coupon to the bill.
func (h *Handler) AddCoupon(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	billID := chi.URLParam(r, "id")
	var payload couponPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	payload.Type = strings.ToUpper(strings.TrimSpace(payload.Type))
	payload.Code = strings.TrimSpace(payload.Code)
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.Svc.AddCoupon(r.Context(), billID, payload.Type, payload.Code, payload.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.Svc.ComputeTotals(r.Context(), billID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, totalsView(summary))
}

// Totals returns the current totals without mutating the bill.
func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	summary, err := h.Svc.ComputeTotals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, totalsView(summary))
}

// Close finalizes the bill against a tendered payment.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	billID := chi.URLParam(r, "id")
	var payload closePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	result, err := h.Svc.Close(r.Context(), billID, payload.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"billId":   billID,
		"status":   StatusClosed,
		"netTotal": result.NetTotal,
		"payment":  payload.Payment,
		"change":   result.Change,
	})
}

// Cancel discards an open bill.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return
	}
	billID := chi.URLParam(r, "id")
	if err := h.Svc.Cancel(r.Context(), billID); err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"billId": billID, "status": StatusCancelled})
}

func (h *Handler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	switch {
	case errors.Is(err, ErrBillNotFound), errors.Is(err, ErrLineNotFound), errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAlreadyVoided):
		common.JSONError(w, http.StatusConflict, "ALREADY_VOIDED", err.Error(), nil)
	case errors.Is(err, ErrInvalidState):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, ErrInsufficientPayment):
		common.JSONError(w, http.StatusUnprocessableEntity, "INSUFFICIENT_PAYMENT", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}

func billView(bill Bill) map[string]any {
	summary := Totals(bill)
	var warnings []string
	if summary.Clamped {
		warnings = append(warnings, "NEGATIVE_TOTAL_CLAMPED")
	}
	return map[string]any{
		"bill":     bill,
		"totals":   totalsView(summary),
		"warnings": warnings,
	}
}

func totalsView(summary pricing.Summary) map[string]any {
	var warnings []string
	if summary.Clamped {
		warnings = append(warnings, "NEGATIVE_TOTAL_CLAMPED")
	}
	return map[string]any{
		"subtotal":       summary.Subtotal,
		"lineDiscount":   summary.LineDiscount,
		"couponDiscount": summary.CouponDiscount,
		"netTotal":       summary.NetTotal,
		"warnings":       warnings,
	}
}
