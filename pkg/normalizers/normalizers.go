// Package normalizers provides text normalization for catalog matching
package normalizers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	// Register built-in normalizers
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("strip_diacritics", StripDiacritics)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("ntitle", NormalizeTitle)
	Register("nperson", NormalizePersonName)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

var (
	diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	emptyBracketRE    = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
	whitespaceRE      = regexp.MustCompile(`\s+`)
)

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// StripDiacritics removes combining marks after NFD decomposition,
// so "Beyoncé" and "Beyonce" normalize to the same string
func StripDiacritics(s string) string {
	out, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseWhitespace folds runs of whitespace into single spaces
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// NormalizeTitle canonicalizes a track or album title for comparison.
// Pure, deterministic and idempotent: lowercase, diacritics stripped,
// empty bracket groups removed, punctuation dropped (word characters,
// spaces and hyphens survive), whitespace collapsed.
func NormalizeTitle(s string) string {
	s = StripDiacritics(strings.ToLower(s))
	s = emptyBracketRE.ReplaceAllString(s, " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return CollapseWhitespace(b.String())
}

// NormalizePersonName canonicalizes a person or artist name for comparison
func NormalizePersonName(s string) string {
	return NormalizeTitle(s)
}

// featuringREs match declared featuring lists, parenthesized or bare.
// Checked in order; first match wins.
var featuringREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(\s*(?:feat|ft)\.?\s+([^)]+)\)`),
	regexp.MustCompile(`(?i)\(\s*featuring\s+([^)]+)\)`),
	regexp.MustCompile(`(?i)\(\s*with\s+([^)]+)\)`),
	regexp.MustCompile(`(?i)\[\s*(?:feat|ft)\.?\s+([^\]]+)\]`),
	regexp.MustCompile(`(?i)\s+(?:feat|ft)\.?\s+(.+)$`),
	regexp.MustCompile(`(?i)\s+featuring\s+(.+)$`),
}

// ExtractFeaturing splits a title into its base title and declared
// featuring artist names. Returns the title unchanged when no featuring
// notation is present.
func ExtractFeaturing(title string) (string, []string) {
	for _, re := range featuringREs {
		m := re.FindStringSubmatchIndex(title)
		if m == nil {
			continue
		}
		names := SplitArtistNames(title[m[2]:m[3]])
		base := CollapseWhitespace(title[:m[0]] + " " + title[m[1]:])
		return base, names
	}
	return CollapseWhitespace(title), nil
}

var artistSeparatorRE = regexp.MustCompile(`(?i)\s*(?:,|&|/|\+|\s+and\s+|\s+x\s+)\s*`)

// SplitArtistNames splits a featuring list like "A, B & C" into names
func SplitArtistNames(s string) []string {
	parts := artistSeparatorRE.Split(s, -1)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}
