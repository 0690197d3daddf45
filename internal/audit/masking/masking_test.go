package masking

import "testing"

func TestMaskSecretKeepsPrefixAndSuffix(t *testing.T) {
	if got := MaskSecret("tok_abcdef123456"); got != "tok_****3456" {
		t.Fatalf("unexpected mask: %q", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("unexpected short mask: %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	if got := MaskEmail("Surfer@Example.com"); got != "S****@Example.com" {
		t.Fatalf("unexpected email mask: %q", got)
	}
}

func TestMaskCardNumber(t *testing.T) {
	if got := MaskCardNumber("xxxx xxxx xxxx 1234"); got != "****1234" {
		t.Fatalf("unexpected card mask: %q", got)
	}
	if got := MaskCardNumber("xx"); got != "****" {
		t.Fatalf("unexpected short card mask: %q", got)
	}
}

func TestMetadataMasksSensitiveKeys(t *testing.T) {
	out := Metadata(map[string]any{
		"email":       "rider@example.com",
		"card_number": "4111 1111 1111 1234",
		"token":       "tok_abcdef123456",
		" amount ":    100,
		"order":       map[string]any{"customer_email": "a@b.ch", "number": "R1001"},
		"holder":      "Rider",
		"empty":       nil,
	})
	if out["email"] != "r****@example.com" {
		t.Fatalf("unexpected email: %v", out["email"])
	}
	if out["card_number"] != "****1234" {
		t.Fatalf("unexpected card: %v", out["card_number"])
	}
	if out["token"] != "tok_****3456" {
		t.Fatalf("unexpected token: %v", out["token"])
	}
	if out["amount"] != 100 {
		t.Fatalf("expected trimmed key with untouched value, got %v", out)
	}
	if out["holder"] != "Rider" {
		t.Fatalf("expected plain key untouched, got %v", out["holder"])
	}
	if _, ok := out["empty"]; ok {
		t.Fatalf("expected nil value dropped")
	}
	nested := out["order"].(map[string]any)
	if nested["customer_email"] != "a****@b.ch" || nested["number"] != "R1001" {
		t.Fatalf("unexpected nested metadata: %v", nested)
	}
}

func TestMaskCardNumberIsIdempotent(t *testing.T) {
	if got := MaskCardNumber(MaskCardNumber("4111111111111234")); got != "****1234" {
		t.Fatalf("unexpected double mask: %q", got)
	}
}
