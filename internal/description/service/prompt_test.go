package service

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func TestBuildPromptIncludesProductFacts(t *testing.T) {
	product := catalogdomain.Product{
		Name:        "Freeride 120",
		Brand:       strPtr("JP"),
		Description: strPtr("<h2>Old copy</h2>\n<p>Glides   early.</p>"),
		Categories:  datatypes.JSON(`["Windsurf","Boards"]`),
		Properties:  datatypes.JSONMap{"volume": "120l", "construction": "PRO", "fins": nil},
		Price:       decimal.RequireFromString("1299.00"),
		Currency:    "EUR",
	}
	variants := []catalogdomain.Variant{
		{OptionsText: strPtr("Size: 110")},
		{OptionsText: strPtr("  ")},
		{OptionsText: nil},
		{OptionsText: strPtr("Size: 120")},
	}

	prompt := BuildPrompt(product, variants)

	assert.True(t, strings.HasPrefix(prompt, "You are an expert e-commerce copywriter"))
	assert.Contains(t, prompt, "\n\nProduct Information:\nProduct Name: Freeride 120\n")
	assert.Contains(t, prompt, "Brand: JP\n")
	assert.Contains(t, prompt, "Categories: Windsurf, Boards\n")
	assert.Contains(t, prompt, "Properties: construction: PRO, volume: 120l\n")
	assert.Contains(t, prompt, "Variant Options: Size: 110, Size: 120\n")
	assert.Contains(t, prompt, "Price: €")
	assert.True(t, strings.HasSuffix(prompt, "Existing description (rewrite and improve this): Old copy Glides early."))
}

func TestBuildPromptSkipsMissingFacts(t *testing.T) {
	prompt := BuildPrompt(catalogdomain.Product{Name: "Harness"}, nil)

	assert.True(t, strings.HasSuffix(prompt, "Product Information:\nProduct Name: Harness"))
	for _, label := range []string{"Brand:", "Categories:", "Properties:", "Variant Options:", "Price:", "Existing description"} {
		assert.NotContains(t, prompt, label)
	}
}

func TestBuildPromptCapsVariantOptions(t *testing.T) {
	variants := make([]catalogdomain.Variant, 0, 8)
	for _, size := range []string{"4.0", "4.5", "5.0", "5.5", "6.0", "6.5", "7.0"} {
		variants = append(variants, catalogdomain.Variant{OptionsText: strPtr("Size: " + size)})
	}

	prompt := BuildPrompt(catalogdomain.Product{Name: "Wave Sail"}, variants)

	assert.Contains(t, prompt, "Variant Options: Size: 4.0, Size: 4.5, Size: 5.0, Size: 5.5, Size: 6.0")
	assert.NotContains(t, prompt, "Size: 6.5")
}

func TestStripHTMLTruncatesLongDescriptions(t *testing.T) {
	long := "<p>" + strings.Repeat("a", 600) + "</p>"
	stripped := StripHTML(long)

	assert.Equal(t, 500, len([]rune(stripped)))
	assert.True(t, strings.HasSuffix(stripped, "..."))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "Freeride 120", n: 60, want: "Freeride 120"},
		{name: "exact", in: "abcdef", n: 6, want: "abcdef"},
		{name: "cut", in: "abcdefghij", n: 8, want: "abcde..."},
		{name: "trailing space", in: "abcd efghij", n: 8, want: "abcd..."},
		{name: "multibyte", in: "Größe über alles", n: 8, want: "Größe..."},
		{name: "tiny limit", in: "abcdef", n: 2, want: "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "plain", in: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```"},
		{name: "bare fence", in: "```\n{\"a\":1}\n```"},
		{name: "padded", in: "  ```json {\"a\":1} ```  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, `{"a":1}`, StripFences(tt.in))
		})
	}
}
