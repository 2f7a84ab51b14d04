package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rewrite replaces the first match, or every match when global is set.
type rewrite struct {
	re       *regexp.Regexp
	template string
	global   bool
}

func (r rewrite) apply(text string) string {
	if r.global {
		return r.re.ReplaceAllString(text, r.template)
	}
	match := r.re.FindStringSubmatchIndex(text)
	if match == nil {
		return text
	}
	expanded := r.re.ExpandString(nil, r.template, text, match)
	return text[:match[0]] + string(expanded) + text[match[1]:]
}

// A word boundary is any rune that is not a letter or digit, so "lumière"
// never matches inside "lumières".
const boundary = `[^\p{L}\p{N}]`

func parseWordRewrite(line string) (rewrite, error) {
	from, to, _ := strings.Cut(line, "=>")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return rewrite{}, errors.New("rewrite needs text before =>")
	}
	re, err := regexp.Compile(`(?i)(^|` + boundary + `)` + regexp.QuoteMeta(from) + `($|` + boundary + `)`)
	if err != nil {
		return rewrite{}, err
	}
	template := "${1}" + strings.ReplaceAll(to, "$", "$$") + "${2}"
	return rewrite{re: re, template: template, global: true}, nil
}

// isSubstitution reports whether line has the s<delim>…<delim>…<delim> shape.
func isSubstitution(line string) bool {
	if !strings.HasPrefix(line, "s") {
		return false
	}
	delim, _ := utf8.DecodeRuneInString(line[1:])
	return isDelimiter(delim)
}

func isDelimiter(r rune) bool {
	return r != utf8.RuneError && !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '\\'
}

// parseSubstitution compiles s/pattern/replacement/flags. Matching ignores
// case. Flag g replaces every match and flag i is accepted for familiarity.
func parseSubstitution(line string) (rewrite, error) {
	delim, size := utf8.DecodeRuneInString(line[1:])
	parts := splitEscaped(line[1+size:], delim)
	if len(parts) != 3 {
		return rewrite{}, fmt.Errorf("substitution needs three %q separated parts", delim)
	}
	pattern, template, flags := parts[0], parts[1], strings.TrimSpace(parts[2])

	global := false
	for _, flag := range flags {
		switch flag {
		case 'g':
			global = true
		case 'i':
		default:
			return rewrite{}, fmt.Errorf("unknown substitution flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return rewrite{}, fmt.Errorf("bad pattern: %w", err)
	}
	return rewrite{re: re, template: template, global: global}, nil
}

// splitEscaped splits s on delim. An escaped delimiter becomes a literal
// delimiter; other escapes are kept for the regexp.
func splitEscaped(s string, delim rune) []string {
	var (
		parts   []string
		current strings.Builder
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			if r != delim {
				current.WriteRune('\\')
			}
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == delim:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		current.WriteRune('\\')
	}
	return append(parts, current.String())
}
