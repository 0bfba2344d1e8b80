package validate

import "testing"

func TestAgentAlias(t *testing.T) {
	got, err := AgentAlias("  bob-03-builder ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "bob-03-builder" {
		t.Fatalf("expected trimmed alias, got %q", got)
	}

	for _, bad := range []string{"", "team/bob", "bad alias", "emoji🙂"} {
		if _, err := AgentAlias(bad); err == nil {
			t.Fatalf("expected error for alias %q", bad)
		}
	}
}

func TestProjectSlugAllowsNesting(t *testing.T) {
	got, err := ProjectSlug("acme/backend")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme/backend" {
		t.Fatalf("got %q", got)
	}
	if _, err := ProjectSlug(""); err == nil {
		t.Fatal("expected error for empty slug")
	}
}

func TestClampTTL(t *testing.T) {
	cases := []struct {
		ttl, def, max, want int
	}{
		{0, 3600, 86400, 3600},
		{-5, 3600, 86400, 3600},
		{100, 3600, 86400, 100},
		{999999, 3600, 86400, 86400},
	}
	for _, c := range cases {
		if got := ClampTTL(c.ttl, c.def, c.max); got != c.want {
			t.Errorf("ClampTTL(%d,%d,%d) = %d, want %d", c.ttl, c.def, c.max, got, c.want)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := EscapeLike(`50%_done\`); got != `50\%\_done\\` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractNamePrefix(t *testing.T) {
	cases := map[string]string{
		"alice":          "alice",
		"alice-web":      "alice",
		"bob-03-builder": "bob-03",
		"Bob-03":         "bob-03",
		"":               "",
	}
	for alias, want := range cases {
		if got := ExtractNamePrefix(alias); got != want {
			t.Errorf("ExtractNamePrefix(%q) = %q, want %q", alias, got, want)
		}
	}
}

func TestSuggestNamePrefixSkipsUsed(t *testing.T) {
	got := SuggestNamePrefix([]string{"alice-api", "bob"})
	if got != "charlie" {
		t.Fatalf("expected charlie, got %q", got)
	}
	if got := SuggestNamePrefix(nil); got != "alice" {
		t.Fatalf("expected alice on empty roster, got %q", got)
	}
}

func TestSuggestNamePrefixNumberedRounds(t *testing.T) {
	used := make([]string, 0, len(ClassicNames))
	used = append(used, ClassicNames...)
	got := SuggestNamePrefix(used)
	if got != "alice-01" {
		t.Fatalf("expected alice-01 after classic names are taken, got %q", got)
	}
}
