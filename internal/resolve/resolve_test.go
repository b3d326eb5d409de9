package resolve

import "testing"

func TestDestinationExactMatchWins(t *testing.T) {
	t.Parallel()
	got, ok := Destination("General", []string{"random", "general"})
	if !ok || got != "general" {
		t.Fatalf("got %q ok=%v, want general", got, ok)
	}
}

func TestDestinationFuzzy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		query      string
		candidates []string
		want       string
		ok         bool
	}{
		{name: "prefix abbreviation", query: "gen", candidates: []string{"general", "random"}, want: "general", ok: true},
		{name: "typo", query: "anouncements", candidates: []string{"announcements", "general"}, want: "announcements", ok: true},
		{name: "nothing close", query: "xyzzy", candidates: []string{"general", "random"}, ok: false},
		{name: "no candidates", query: "general", candidates: nil, ok: false},
		{name: "empty query", query: "  ", candidates: []string{"general"}, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Destination(tt.query, tt.candidates)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("Destination(%q) = %q, %v; want %q, %v", tt.query, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRoleCutoffStricter(t *testing.T) {
	t.Parallel()
	// "gen" vs "general" scores ~0.43: above the destination cutoff,
	// below the role cutoff.
	if _, ok := Destination("gen", []string{"general"}); !ok {
		t.Fatal("destination cutoff should accept gen -> general")
	}
	if _, ok := Role("gen", []string{"general"}); ok {
		t.Fatal("role cutoff should reject gen -> general")
	}
	if got, ok := Role("Gamers", []string{"gamers", "updates"}); !ok || got != "gamers" {
		t.Fatalf("exact role match failed: %q, %v", got, ok)
	}
	if got, ok := Role("gamer", []string{"gamers", "updates"}); !ok || got != "gamers" {
		t.Fatalf("near role match failed: %q, %v", got, ok)
	}
}
