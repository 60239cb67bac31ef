package billing

import "errors"

var (
	// ErrBillNotFound indicates the bill does not exist.
	ErrBillNotFound = errors.New("bill not found")
	// ErrLineNotFound indicates the line does not exist on the bill.
	ErrLineNotFound = errors.New("line not found")
	// ErrProductNotFound indicates the scanned code matched no product.
	ErrProductNotFound = errors.New("product not found")
	// ErrAlreadyVoided rejects a repeated void of the same line. Double
	// void is an error, never a silent no-op: accepting it could trigger
	// the pair rebalance twice.
	ErrAlreadyVoided = errors.New("line already voided")
	// ErrInvalidState rejects mutations against a bill that is not OPEN.
	ErrInvalidState = errors.New("bill not open")
	// ErrConflict reports a lost race on a concurrent mutation of the same
	// bill after retries were exhausted. Transient.
	ErrConflict = errors.New("concurrent bill mutation")
	// ErrInsufficientPayment rejects a close whose tendered amount is below
	// the net total.
	ErrInsufficientPayment = errors.New("payment below net total")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)
