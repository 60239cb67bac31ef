package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// masterColumns maps the master-data export headers to canonical names.
// Header matching is case-insensitive and tolerates the alternate names the
// export has carried over time.
var masterColumns = map[string]string{
	"itemcode":        "code",
	"item code":       "code",
	"barcodes":        "barcodes",
	"barcode":         "barcodes",
	"item name":       "name",
	"item name (eng)": "nameEng",
	"price":           "price",
	"pair price":      "pairPrice",
	"pairprice":       "pairPrice",
	"deal price":      "pairPrice",
	"promotion":       "promotion",
	"promo":           "promotion",
	"tag":             "promotion",
}

// ParseMasterCSV reads a master-data CSV export and returns the products it
// describes. Rows without an item code are skipped. The Promotion column is
// decoded with ParseMethod, so unknown tags import as NONE.
func ParseMasterCSV(r io.Reader) ([]Product, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := map[string]int{}
	for i, col := range header {
		if name, ok := masterColumns[strings.ToLower(strings.TrimSpace(col))]; ok {
			if _, seen := index[name]; !seen {
				index[name] = i
			}
		}
	}
	if _, ok := index["code"]; !ok {
		return nil, fmt.Errorf("master csv missing Itemcode column")
	}

	var products []Product
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		code := NormalizeCode(field(row, index, "code"))
		if code == "" {
			continue
		}
		name := strings.TrimSpace(field(row, index, "name"))
		if name == "" {
			name = strings.TrimSpace(field(row, index, "nameEng"))
		}
		if name == "" {
			name = "Unknown"
		}
		p := Product{
			Code:         code,
			Description:  name,
			RegularPrice: parsePrice(field(row, index, "price")),
			PairPrice:    parsePrice(field(row, index, "pairPrice")),
			Method:       ParseMethod(field(row, index, "promotion")),
		}
		for _, raw := range strings.Split(field(row, index, "barcodes"), ",") {
			if alias := NormalizeCode(raw); alias != "" {
				p.Barcodes = append(p.Barcodes, alias)
			}
		}
		products = append(products, p)
	}
	return products, nil
}

func field(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// parsePrice accepts the export's decimal prices and stores minor units.
func parsePrice(raw string) Money {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return Money(v*100 + 0.5)
}
