package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	maxMetaTitleRunes       = 60
	maxMetaDescriptionRunes = 155
	maxExistingDescription  = 500
	maxVariantOptions       = 5
)

const systemPrompt = `You are an expert e-commerce copywriter for Surfworld, a premium water sports equipment shop.
Write compelling, SEO-optimized product content for water sports gear (kitesurfing, windsurfing, wingfoil, SUP, wetsuits, etc.).

Your writing style:
- Professional but approachable, gear-enthusiast tone
- Focus on benefits and real-world performance, not just specs
- Use HTML formatting: <h2>, <h3>, <p>, <ul>, <li>, <strong>
- Include relevant keywords naturally for SEO
- Never mention competitors by name
- Never mention "Surf-Store" or "surf-store.com"
- Reference "Surfworld" as the shop name where appropriate
- Write in English

Given the following product information, return a valid JSON object with exactly these keys:
{
  "description": "HTML product description (200-300 words, with headings and bullet points)",
  "meta_title": "SEO meta title (max 60 characters, include product name and key feature)",
  "meta_description": "SEO meta description (max 155 characters, compelling call-to-action)"
}

Return ONLY the raw JSON object. No markdown code fences, no explanation.`

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	openFencePattern  = regexp.MustCompile("^```(?:json)?\\s*")
	closeFencePattern = regexp.MustCompile("\\s*```$")
)

// BuildPrompt renders the product facts the copywriter prompt is built from.
func BuildPrompt(product catalogdomain.Product, variants []catalogdomain.Variant) string {
	lines := []string{"Product Name: " + product.Name}

	if product.Brand != nil && strings.TrimSpace(*product.Brand) != "" {
		lines = append(lines, "Brand: "+strings.TrimSpace(*product.Brand))
	}
	if categories := product.CategoryNames(); len(categories) > 0 {
		lines = append(lines, "Categories: "+strings.Join(categories, ", "))
	}
	if props := formatProperties(product.Properties); props != "" {
		lines = append(lines, "Properties: "+props)
	}

	options := make([]string, 0, maxVariantOptions)
	for _, variant := range variants {
		if variant.OptionsText == nil || strings.TrimSpace(*variant.OptionsText) == "" {
			continue
		}
		options = append(options, strings.TrimSpace(*variant.OptionsText))
		if len(options) == maxVariantOptions {
			break
		}
	}
	if len(options) > 0 {
		lines = append(lines, "Variant Options: "+strings.Join(options, ", "))
	}

	if product.Price.IsPositive() {
		lines = append(lines, "Price: "+formatPrice(product))
	}

	if product.Description != nil {
		if existing := StripHTML(*product.Description); existing != "" {
			lines = append(lines, "Existing description (rewrite and improve this): "+existing)
		}
	}

	return systemPrompt + "\n\nProduct Information:\n" + strings.Join(lines, "\n")
}

func formatProperties(props map[string]any) string {
	if len(props) == 0 {
		return ""
	}
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.TrimSpace(fmt.Sprint(props[key]))
		if value == "" || props[key] == nil {
			continue
		}
		parts = append(parts, key+": "+value)
	}
	return strings.Join(parts, ", ")
}

func formatPrice(product catalogdomain.Product) string {
	amount, _ := product.Price.Float64()
	code := strings.ToUpper(strings.TrimSpace(product.Currency))
	if code == "" {
		code = "EUR"
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return product.Price.StringFixed(2) + " " + code
	}
	return message.NewPrinter(language.English).Sprint(currency.Symbol(unit.Amount(amount)))
}

// StripHTML removes tags, collapses whitespace and truncates to the prompt's budget.
func StripHTML(html string) string {
	text := htmlTagPattern.ReplaceAllString(html, " ")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	return Truncate(text, maxExistingDescription)
}

// Truncate shortens s to at most n runes, ending with "..." when cut.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:n])
	}
	return strings.TrimRight(string(runes[:n-3]), " ") + "..."
}

// StripFences removes a markdown code fence the model may wrap its JSON in.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = openFencePattern.ReplaceAllString(text, "")
	text = closeFencePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
