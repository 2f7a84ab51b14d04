package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"angelvoice/internal/domain"
)

func TestLoadRewritesCommands(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "commands.rules")
	contents := `
# whole words
allume => turn on
s/\bla\s+lumi[eè]re\b/the lights/g
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}

	set, err := Load(path, 30)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 rewrites, got %d", set.Len())
	}

	output, err := set.Apply("Allume   LA lumière")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "turn on the lights" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestApplyRepeatsUntilStable(t *testing.T) {
	t.Parallel()

	set, err := Parse("salon => living room\nliving room => lounge\n", 5)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	output, err := set.Apply("lumière du salon")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "lumière du lounge" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestApplyReportsUnstableRules(t *testing.T) {
	t.Parallel()

	set, err := Parse("oui => oui oui\n", 4)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := set.Apply("oui"); !errors.Is(err, ErrUnstable) {
		t.Fatalf("expected ErrUnstable, got %v", err)
	}
}

func TestWordRewrites(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		rules string
		in    string
		want  string
	}{
		{"whole words only", "lumière => light\nla => the\n", "allume la lumière, lumières éclairées", "allume the light, lumières éclairées"},
		{"dollar kept literally", "dix dollars => $10\n", "envoie dix dollars", "envoie $10"},
		{"leading s is not a substitution", "s'il te plaît => please\n", "ferme la porte s'il te plaît", "ferme la porte please"},
		{"phrase", "stop la musique => pause music\n", "stop la musique  maintenant", "pause music maintenant"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			set, err := Parse(tc.rules, 0)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			got, err := set.Apply(tc.in)
			if err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSubstitutions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rule string
		in   string
		want string
	}{
		{`s/encore/again/`, "encore encore", "again encore"},
		{`s/encore/again/g`, "Encore encore", "again again"},
		{`s|(\d+) heures|$1 h|`, "réveille moi à 7 heures", "réveille moi à 7 h"},
		{`s#a\#b#c#`, "x a#b", "x c"},
	}
	for _, tc := range cases {
		set, err := Parse(tc.rule, 0)
		if err != nil {
			t.Fatalf("%s: parse failed: %v", tc.rule, err)
		}
		got, err := set.Apply(tc.in)
		if err != nil {
			t.Fatalf("%s: apply failed: %v", tc.rule, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.rule, tc.want, got)
		}
	}
}

func TestParseReportsEveryBadLine(t *testing.T) {
	t.Parallel()

	_, err := Parse("n'importe quoi\ns/foo/bar/x\nvariant:\n", 0)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	for _, want := range []string{"line 1", "line 2", "line 3"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestVariantsAndControlPhrases(t *testing.T) {
	t.Parallel()

	set, err := Parse("variant: Anjela\nshow: Montre le panneau\nhide: ferme le panneau\n", 0)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := set.Variants(); len(got) != 1 || got[0] != "anjela" {
		t.Fatalf("unexpected variants: %v", got)
	}
	if set.Len() != 0 {
		t.Fatalf("directives must not count as rewrites")
	}

	cases := map[string]domain.SystemCommand{
		"Affiche les contrôles s'il te plaît": domain.SystemShowControls,
		"cache la configuration":              domain.SystemHideControls,
		"montre le panneau":                   domain.SystemShowControls,
		"bon, ferme le panneau":               domain.SystemHideControls,
	}
	for text, want := range cases {
		got, ok := set.UICommand(text)
		if !ok || got != want {
			t.Fatalf("%q: expected %s, got %s (%t)", text, want, got, ok)
		}
	}
	if _, ok := set.UICommand("quelle heure est-il"); ok {
		t.Fatalf("unexpected control command")
	}
}

func TestLoadMissingFileUsesBuiltins(t *testing.T) {
	t.Parallel()

	set, err := Load(filepath.Join(t.TempDir(), "missing.rules"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output, err := set.Apply("  quelle   heure ")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "  quelle   heure " {
		t.Fatalf("expected untouched command, got %q", output)
	}
	if _, ok := set.UICommand("masque les contrôles"); !ok {
		t.Fatalf("expected built-in control phrase")
	}
}
