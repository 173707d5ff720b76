package roster

import (
	"reflect"
	"testing"
)

func TestRosterLookup(t *testing.T) {
	r := New(map[int64]string{1: "Alice", 2: "Bob"})

	name, ok := r.Name(1)
	if !ok || name != "Alice" {
		t.Errorf("expected Alice, got %q (ok=%v)", name, ok)
	}

	if r.Contains(3) {
		t.Error("expected student 3 to be off roster")
	}

	if r.Len() != 2 {
		t.Errorf("expected len 2, got %d", r.Len())
	}
}

func TestRosterCopiesInput(t *testing.T) {
	src := map[int64]string{1: "Alice"}
	r := New(src)

	src[2] = "Eve"

	if r.Contains(2) {
		t.Error("mutating the source map must not change the roster")
	}
}

func TestRosterIDs(t *testing.T) {
	r := New(map[int64]string{9: "c", 1: "a", 5: "b"})

	if got := r.IDs(); !reflect.DeepEqual(got, []int64{1, 5, 9}) {
		t.Errorf("expected sorted IDs, got %v", got)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"diacritics", "Nguyễn Văn Tuấn", "nguyen van tuan"},
		{"underscores", "Nguyen_Van_Tuan", "nguyen van tuan"},
		{"dashes and case", "Mai-Thanh THU", "mai thanh thu"},
		{"extra whitespace", "  Le   Duc  Nguyen ", "le duc nguyen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeName(tt.input); got != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRemoveDiacritics(t *testing.T) {
	if got := RemoveDiacritics("Jiří"); got != "Jiri" {
		t.Errorf("expected Jiri, got %q", got)
	}
}
