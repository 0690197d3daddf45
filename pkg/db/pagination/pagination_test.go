package pagination

import "testing"

type row struct{ id string }

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{id: "a"}, {id: "b"}, {id: "c"}}

	info := BuildCursorPageInfo(rows, 2, func(r *row) string { return r.id })
	if !info.HasMore || info.NextPageToken != "b" {
		t.Fatalf("unexpected page info %+v", info)
	}

	info = BuildCursorPageInfo(rows, 3, func(r *row) string { return r.id })
	if info.HasMore || info.NextPageToken != "" {
		t.Fatalf("expected last page, got %+v", info)
	}

	info = BuildCursorPageInfo([]*row{}, 3, func(r *row) string { return r.id })
	if info.HasMore {
		t.Fatalf("expected empty page without more")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-03-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" || cursor.CreatedAt != "2026-03-01T00:00:00Z" {
		t.Fatalf("unexpected cursor %+v", cursor)
	}
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClampPageSize(t *testing.T) {
	if got := ClampPageSize(0, 25, 100); got != 25 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ClampPageSize(500, 25, 100); got != 100 {
		t.Fatalf("expected max, got %d", got)
	}
	if got := ClampPageSize(10, 25, 100); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}
