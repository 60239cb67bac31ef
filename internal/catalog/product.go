package catalog

import "strings"

// Money is a monetary value in minor units.
type Money = int64

// Method identifies how a product is priced at the till.
type Method int

const (
	// MethodNone prices every unit at the regular price.
	MethodNone Method = iota
	// MethodMarkdown prices every unit at the promotional price.
	MethodMarkdown
	// MethodPairPromo combines every two units into a pair sold at PairPrice.
	MethodPairPromo
)

// String returns the canonical wire representation of the method.
func (m Method) String() string {
	switch m {
	case MethodMarkdown:
		return "MARKDOWN"
	case MethodPairPromo:
		return "PAIR_PROMO"
	default:
		return "NONE"
	}
}

// ParseMethod decodes a master-data promotion tag into a Method. Unknown or
// blank tags price as NONE rather than guessing a promotion.
func ParseMethod(tag string) Method {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "MARKDOWN", "DEAL":
		return MethodMarkdown
	case "PAIR_PROMO", "PAIR", "BOGO":
		return MethodPairPromo
	default:
		return MethodNone
	}
}

// Product is immutable reference data for one sellable item.
//
// PairPrice is the promotional price and is only meaningful when Method is
// not MethodNone: for MethodMarkdown it is the per-unit markdown price, for
// MethodPairPromo it is the combined price of a matched pair.
type Product struct {
	Code         string   `json:"code"`
	Description  string   `json:"description"`
	Barcodes     []string `json:"barcodes,omitempty"`
	RegularPrice Money    `json:"regularPrice"`
	PairPrice    Money    `json:"pairPrice"`
	Method       Method   `json:"-"`
}

// MarkdownUnitPrice returns the per-unit price for a markdown product,
// falling back to the regular price when no promotional price was imported.
func (p Product) MarkdownUnitPrice() Money {
	if p.PairPrice > 0 && p.PairPrice < p.RegularPrice {
		return p.PairPrice
	}
	return p.RegularPrice
}

// NormalizeCode canonicalises a scanned code or barcode before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
