package pii

import (
	"strings"
	"testing"
)

func mapResolver(entries map[string]string) ResolveFunc {
	return func(placeholder string) string {
		if original, ok := entries[placeholder]; ok {
			return original
		}
		return placeholder
	}
}

func restoreAll(resolve ResolveFunc, fragments []string) string {
	r := NewStreamRestorer(resolve)
	var b strings.Builder
	for _, f := range fragments {
		for _, piece := range r.Feed(f) {
			b.WriteString(piece)
		}
	}
	b.WriteString(r.Flush())
	return b.String()
}

// === Fragmented placeholder restoration ===

func TestStreamRestorer_Fragments(t *testing.T) {
	entries := map[string]string{
		"<PERSON_abc12345>": "Peter",
		"<EMAIL_00ff00ff>":  "peter@example.com",
	}

	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{
			name:      "placeholder split across fragments",
			fragments: []string{"Hallo ", "<PERSO", "N_abc12345> ", "wie geht", " es dir?"},
			want:      "Hallo Peter wie geht es dir?",
		},
		{
			name:      "placeholder in one fragment",
			fragments: []string{"Hallo <PERSON_abc12345>!"},
			want:      "Hallo Peter!",
		},
		{
			name:      "placeholder split one byte at a time",
			fragments: strings.Split("Schreib an <EMAIL_00ff00ff> bitte", ""),
			want:      "Schreib an peter@example.com bitte",
		},
		{
			name:      "two placeholders back to back",
			fragments: []string{"<PERSON_abc12345>", "<EMAIL_00ff00ff>"},
			want:      "Peterpeter@example.com",
		},
		{
			name:      "benign markup passes verbatim",
			fragments: []string{"Nutze ", "<br>", " hier"},
			want:      "Nutze <br> hier",
		},
		{
			name:      "comparison sign released promptly",
			fragments: []string{"Antwortzeit ", "< 5 ms"},
			want:      "Antwortzeit < 5 ms",
		},
		{
			name:      "angle pair without placeholder shape",
			fragments: []string{"a <PERSON> b"},
			want:      "a <PERSON> b",
		},
		{
			name:      "uppercase hex suffix is not a placeholder",
			fragments: []string{"x <PERSON_ABC12345> y"},
			want:      "x <PERSON_ABC12345> y",
		},
		{
			name:      "unknown placeholder stays put",
			fragments: []string{"Hi <PERSON_deadbeef>"},
			want:      "Hi <PERSON_deadbeef>",
		},
		{
			name:      "empty fragments are harmless",
			fragments: []string{"", "<PERSON_a", "", "bc12345>", ""},
			want:      "Peter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := restoreAll(mapResolver(entries), tt.fragments)
			if got != tt.want {
				t.Errorf("restored %q, want %q", got, tt.want)
			}
		})
	}
}

// === Refragmentation invariance ===

func TestStreamRestorer_RefragmentationInvariant(t *testing.T) {
	entries := map[string]string{
		"<PERSON_abc12345>": "Peter",
		"<CITY_0a1b2c3d>":   "Berlin",
	}
	corpus := "Hi <PERSON_abc12345>, <br> aus <CITY_0a1b2c3d> < 3 und <UNKNOWN_ffffffff>!"

	want := restoreAll(mapResolver(entries), []string{corpus})

	// Every split into two fragments.
	for i := 0; i <= len(corpus); i++ {
		got := restoreAll(mapResolver(entries), []string{corpus[:i], corpus[i:]})
		if got != want {
			t.Fatalf("2-way split at %d: got %q, want %q", i, got, want)
		}
	}
	// Every split into three fragments.
	for i := 0; i <= len(corpus); i++ {
		for j := i; j <= len(corpus); j++ {
			got := restoreAll(mapResolver(entries), []string{corpus[:i], corpus[i:j], corpus[j:]})
			if got != want {
				t.Fatalf("3-way split at %d/%d: got %q, want %q", i, j, got, want)
			}
		}
	}
	// One byte at a time.
	if got := restoreAll(mapResolver(entries), strings.Split(corpus, "")); got != want {
		t.Fatalf("byte-wise split: got %q, want %q", got, want)
	}
}

// === Promptness and partial-placeholder safety ===

func TestStreamRestorer_NeverEmitsPartialPlaceholder(t *testing.T) {
	entries := map[string]string{"<PERSON_abc12345>": "Peter"}
	r := NewStreamRestorer(mapResolver(entries))

	var emitted []string
	feed := func(f string) {
		emitted = append(emitted, r.Feed(f)...)
	}

	feed("Hallo ")
	if strings.Join(emitted, "") != "Hallo " {
		t.Fatalf("plain text must flow through promptly, got %q", emitted)
	}

	feed("<PERSO")
	feed("N_abc")
	if strings.Join(emitted, "") != "Hallo " {
		t.Fatalf("partial placeholder leaked: %q", emitted)
	}

	feed("12345>")
	if got := strings.Join(emitted, ""); got != "Hallo Peter" {
		t.Fatalf("got %q, want %q", got, "Hallo Peter")
	}
	for _, piece := range emitted {
		if strings.Contains(piece, "<PERSO") {
			t.Errorf("piece %q contains a partial placeholder", piece)
		}
	}
}

func TestStreamRestorer_AngleDisambiguation(t *testing.T) {
	r := NewStreamRestorer(mapResolver(nil))

	// A lone '<' is held until the next byte arrives.
	if got := strings.Join(r.Feed("x <"), ""); got != "x " {
		t.Fatalf("after lone '<': got %q, want %q", got, "x ")
	}
	// A non-uppercase successor releases it immediately.
	if got := strings.Join(r.Feed("3"), ""); got != "<3" {
		t.Fatalf("after '<3': got %q, want %q", got, "<3")
	}
	if got := r.Flush(); got != "" {
		t.Fatalf("flush residue: got %q, want empty", got)
	}
}

// === End-of-stream residue ===

func TestStreamRestorer_FlushResidue(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     string
	}{
		{"unterminated placeholder", "<PERSON_abc", "<PERSON_abc"},
		{"bare angle", "<", "<"},
		{"uppercase run", "<ABC", "<ABC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamRestorer(mapResolver(nil))
			if pieces := r.Feed(tt.fragment); len(pieces) != 0 {
				t.Fatalf("expected everything held, got %q", pieces)
			}
			if got := r.Flush(); got != tt.want {
				t.Errorf("flush: got %q, want %q", got, tt.want)
			}
			if got := r.Flush(); got != "" {
				t.Errorf("second flush must be empty, got %q", got)
			}
		})
	}
}
