package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	at := strings.LastIndex(trimmed, "@")
	if at <= 0 {
		return MaskSecret(trimmed)
	}
	return trimmed[:1] + maskToken + trimmed[at:]
}

// MaskCardNumber reduces a card number to its last four digits.
func MaskCardNumber(value string) string {
	digits := make([]rune, 0, len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return maskToken
	}
	return maskToken + string(digits[len(digits)-4:])
}

// Metadata copies audit metadata, masking values stored under sensitive keys.
// Keys are trimmed and nil values dropped. Other values pass through.
func Metadata(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" || value == nil {
			continue
		}
		out[key] = maskByKey(key, value)
	}
	return out
}

func maskByKey(key string, value any) any {
	switch cast := value.(type) {
	case map[string]any:
		return Metadata(cast)
	case string:
		switch keyKind(key) {
		case kindEmail:
			return MaskEmail(cast)
		case kindCard:
			return MaskCardNumber(cast)
		case kindSecret:
			return MaskSecret(cast)
		}
	}
	return value
}

type sensitiveKind int

const (
	kindPlain sensitiveKind = iota
	kindEmail
	kindCard
	kindSecret
)

func keyKind(key string) sensitiveKind {
	key = strings.ToLower(key)
	switch {
	case key == "email" || strings.HasSuffix(key, "_email"):
		return kindEmail
	case key == "card_number" || key == "pan" || strings.HasSuffix(key, "_card_number"):
		return kindCard
	case strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "password"),
		strings.HasSuffix(key, "api_key"):
		return kindSecret
	default:
		return kindPlain
	}
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
