package feed

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/smallbiznis/storefront/internal/config"
	"golang.org/x/text/encoding/charmap"
)

// Neil Pryde stockinfo columns.
const (
	prydeColBrand    = 0
	prydeColEAN      = 8
	prydeColUPC      = 9
	prydeColQuantity = 11
	prydeMinFields   = 13
)

// ParseFunc turns a supplier file into a barcode to quantity map.
type ParseFunc func(r io.Reader) (map[string]int, error)

// ParserFor selects the parser for a supplier's feed format.
func ParserFor(cfg config.SupplierConfig) (ParseFunc, error) {
	switch cfg.Format {
	case config.FeedFormatBoardsAndMore:
		return ParseBoardsAndMore, nil
	case config.FeedFormatNeilPryde:
		brands := cfg.Brands
		return func(r io.Reader) (map[string]int, error) {
			return ParseNeilPryde(r, brands)
		}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ParseBoardsAndMore reads "EAN;quantity" lines without a header.
func ParseBoardsAndMore(r io.Reader) (map[string]int, error) {
	out := map[string]int{}
	err := eachRecord(r, func(fields []string) {
		if len(fields) < 2 {
			return
		}
		code := strings.TrimSpace(fields[0])
		if code == "" {
			return
		}
		out[code] = parseQuantity(fields[1])
	})
	return out, err
}

// ParseNeilPryde reads the Latin-1 stockinfo export. The header row is skipped
// and only rows whose product area is in brands are kept. EAN is preferred,
// UPC is the fallback.
func ParseNeilPryde(r io.Reader, brands []string) (map[string]int, error) {
	allowed := make(map[string]struct{}, len(brands))
	for _, brand := range brands {
		allowed[strings.TrimSpace(brand)] = struct{}{}
	}

	out := map[string]int{}
	header := true
	err := eachRecord(charmap.ISO8859_1.NewDecoder().Reader(r), func(fields []string) {
		if header {
			header = false
			return
		}
		if len(fields) < prydeMinFields {
			return
		}
		if _, ok := allowed[strings.TrimSpace(fields[prydeColBrand])]; !ok {
			return
		}

		code := strings.TrimSpace(fields[prydeColEAN])
		if code == "" {
			code = strings.TrimSpace(fields[prydeColUPC])
		}
		if code == "" {
			return
		}
		out[code] = parseQuantity(fields[prydeColQuantity])
	})
	return out, err
}

func eachRecord(r io.Reader, fn func(fields []string)) error {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return err
		}
		fn(fields)
	}
}

// parseQuantity reads the leading integer of a cell; anything unparsable is 0.
func parseQuantity(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) {
		c := raw[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	qty, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}
	return qty
}
