// Package rules loads the command rules file.
//
// Each non-blank line that is not a # comment is one of:
//
//	allume => turn on            whole-word rewrite of captured commands
//	s/\bla lumi[eè]re\b/lights/g  regular expression rewrite (g: every match)
//	variant: anjela              extra spelling accepted for the wake word
//	show: montre le panneau      phrase that opens the controls
//	hide: ferme le panneau       phrase that closes the controls
//
// Directives are matched before rewrites, so a rewrite cannot start with
// "variant:", "show:" or "hide:".
package rules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"angelvoice/internal/domain"
)

const defaultPassLimit = 30

// ErrUnstable is returned when rewrites keep changing a command past the pass limit.
var ErrUnstable = errors.New("command rules did not converge")

// builtinKeywords are the control phrases recognized without a rules file.
var builtinKeywords = []keyword{
	{phrase: "affiche la configuration", command: domain.SystemShowControls},
	{phrase: "montre les contrôles", command: domain.SystemShowControls},
	{phrase: "affiche les contrôles", command: domain.SystemShowControls},
	{phrase: "cache la configuration", command: domain.SystemHideControls},
	{phrase: "masque les contrôles", command: domain.SystemHideControls},
	{phrase: "cache les contrôles", command: domain.SystemHideControls},
}

var directives = map[string]domain.SystemCommand{
	"show": domain.SystemShowControls,
	"hide": domain.SystemHideControls,
}

type keyword struct {
	phrase  string
	command domain.SystemCommand
}

// Set is a parsed rules file. It is immutable and safe for concurrent use.
type Set struct {
	rewrites  []rewrite
	variants  []string
	keywords  []keyword
	passLimit int
}

// Load reads path. An empty path or a missing file yields the built-in set.
func Load(path string, passLimit int) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("", passLimit)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Parse("", passLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("read rules %q: %w", path, err)
	}
	set, err := Parse(string(data), passLimit)
	if err != nil {
		return nil, fmt.Errorf("rules %q: %w", path, err)
	}
	return set, nil
}

// Parse compiles rules from contents.
func Parse(contents string, passLimit int) (*Set, error) {
	if passLimit <= 0 {
		passLimit = defaultPassLimit
	}
	set := &Set{
		keywords:  append([]keyword(nil), builtinKeywords...),
		passLimit: passLimit,
	}

	var errs []error
	for n, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := set.addLine(line); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n+1, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return set, nil
}

func (s *Set) addLine(line string) error {
	if name, value, ok := splitDirective(line); ok {
		value = strings.ToLower(value)
		if value == "" {
			return fmt.Errorf("%s: needs a value", name)
		}
		if name == "variant" {
			s.variants = append(s.variants, value)
			return nil
		}
		s.keywords = append(s.keywords, keyword{phrase: value, command: directives[name]})
		return nil
	}

	var (
		rw  rewrite
		err error
	)
	switch {
	case isSubstitution(line):
		rw, err = parseSubstitution(line)
		// "s'il vous plaît => merci" is a word rewrite, not s'…'…'.
		if err != nil && strings.Contains(line, "=>") {
			rw, err = parseWordRewrite(line)
		}
	case strings.Contains(line, "=>"):
		rw, err = parseWordRewrite(line)
	default:
		return fmt.Errorf("unrecognized rule %q", line)
	}
	if err != nil {
		return err
	}
	s.rewrites = append(s.rewrites, rw)
	return nil
}

func splitDirective(line string) (name, value string, ok bool) {
	head, tail, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	name = strings.ToLower(strings.TrimSpace(head))
	if _, known := directives[name]; !known && name != "variant" {
		return "", "", false
	}
	return name, strings.TrimSpace(tail), true
}

// Len returns the number of rewrites.
func (s *Set) Len() int {
	return len(s.rewrites)
}

// Variants returns the extra wake word spellings.
func (s *Set) Variants() []string {
	return append([]string(nil), s.variants...)
}

// Apply rewrites a command until no rule changes it. Whitespace in the
// result is collapsed.
func (s *Set) Apply(command string) (string, error) {
	if len(s.rewrites) == 0 {
		return command, nil
	}
	text := command
	for pass := 0; pass < s.passLimit; pass++ {
		before := text
		for _, rw := range s.rewrites {
			text = rw.apply(text)
		}
		if text == before {
			return strings.Join(strings.Fields(text), " "), nil
		}
	}
	return strings.Join(strings.Fields(text), " "), fmt.Errorf("%w after %d passes", ErrUnstable, s.passLimit)
}

// UICommand reports the control command spoken in command, if any. The
// first matching phrase wins.
func (s *Set) UICommand(command string) (domain.SystemCommand, bool) {
	text := strings.ToLower(command)
	for _, kw := range s.keywords {
		if strings.Contains(text, kw.phrase) {
			return kw.command, true
		}
	}
	return "", false
}
