package matching

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/chorus/pkg/normalizers"
)

// VariantRule tags a title marker pattern. Rules are data, not control
// flow: new providers extend matching by adding rules, not branches.
type VariantRule struct {
	Tag     string
	Pattern *regexp.Regexp
}

// defaultVariantRules cover mix/version, live and release-quality markers.
// Order matters: the first matching rule supplies the tag.
var defaultVariantRules = []VariantRule{
	{Tag: "remix", Pattern: regexp.MustCompile(`(?i)\b(?:remix|rmx|rework|flip|bootleg|mashup|vip)\b`)},
	{Tag: "radio_edit", Pattern: regexp.MustCompile(`(?i)\bradio\s+edit\b`)},
	{Tag: "edit", Pattern: regexp.MustCompile(`(?i)\bedit\b`)},
	{Tag: "mix", Pattern: regexp.MustCompile(`(?i)\b(?:extended|club|original|dub)?\s*mix\b`)},
	{Tag: "version", Pattern: regexp.MustCompile(`(?i)\b(?:version|ver\.?)\b`)},
	{Tag: "instrumental", Pattern: regexp.MustCompile(`(?i)\binstrumental\b`)},
	{Tag: "acoustic", Pattern: regexp.MustCompile(`(?i)\b(?:acoustic|unplugged)\b`)},
	{Tag: "demo", Pattern: regexp.MustCompile(`(?i)\bdemo\b`)},
	{Tag: "live", Pattern: regexp.MustCompile(`(?i)\blive(?:\s+(?:at|from|in)\b.*)?`)},
	{Tag: "remaster", Pattern: regexp.MustCompile(`(?i)\bremaster(?:ed)?\b`)},
	{Tag: "clean", Pattern: regexp.MustCompile(`(?i)\b(?:clean|explicit|censored)\b`)},
	{Tag: "slowed", Pattern: regexp.MustCompile(`(?i)\b(?:slowed|sped\s+up|chopped\s+(?:and|&)\s+screwed)\b`)},
	{Tag: "cover", Pattern: regexp.MustCompile(`(?i)\bcover\b`)},
	{Tag: "bonus", Pattern: regexp.MustCompile(`(?i)\bbonus\s+track\b`)},
}

// markerGroupRE finds bracketed groups and trailing dash segments where
// variant markers live, e.g. "(Radio Edit)", "[Remix]", "- Live at Wembley".
var markerGroupRE = regexp.MustCompile(`\(([^)]*)\)|\[([^\]]*)\]|\s+-\s+([^-()\[\]]+)$`)

// VariantClassifier recognizes structural title variants that raw
// similarity alone would under- or over-score
type VariantClassifier struct {
	rules  []VariantRule
	scorer *Scorer
}

// NewVariantClassifier creates a classifier with the built-in rule table
func NewVariantClassifier() *VariantClassifier {
	return &VariantClassifier{rules: defaultVariantRules, scorer: NewScorer()}
}

// NewVariantClassifierFromPatterns builds a classifier from externally
// supplied tag->patterns tables. Invalid or empty tables fall back to the
// built-in defaults with a warning rather than aborting.
func NewVariantClassifierFromPatterns(patterns map[string][]string, logger ectologger.Logger) *VariantClassifier {
	if len(patterns) == 0 {
		return NewVariantClassifier()
	}

	tags := make([]string, 0, len(patterns))
	for tag := range patterns {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	rules := make([]VariantRule, 0, len(patterns))
	for _, tag := range tags {
		for _, p := range patterns[tag] {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				logger.WithError(err).WithFields(map[string]any{"tag": tag, "pattern": p}).Warn("Invalid variant pattern, falling back to defaults")
				return NewVariantClassifier()
			}
			rules = append(rules, VariantRule{Tag: tag, Pattern: re})
		}
	}

	return &VariantClassifier{rules: rules, scorer: NewScorer()}
}

// StripVariantMarkers removes marker-bearing groups from a title and
// returns the remaining base title plus the ordered tags that were found
func (vc *VariantClassifier) StripVariantMarkers(title string) (string, []string) {
	var markers []string
	base := title

	// Remove marker groups right to left so earlier indices stay valid.
	// Non-marker groups ("(feat. X)", plain subtitles) are left in place.
	locs := markerGroupRE.FindAllStringSubmatchIndex(base, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		tag := vc.markerTag(matchedGroup(base, loc))
		if tag == "" {
			continue
		}
		markers = append([]string{tag}, markers...)
		base = normalizers.CollapseWhitespace(base[:loc[0]] + " " + base[loc[1]:])
	}

	// Trailing bare markers without brackets, e.g. "Song Remix"
	if tag := vc.trailingMarkerTag(base); tag != "" {
		fields := strings.Fields(base)
		if len(fields) > 1 {
			markers = append(markers, tag)
			base = strings.Join(fields[:len(fields)-1], " ")
		}
	}

	return base, markers
}

// ExplainsAsVariant reports whether the difference between two titles is
// fully explained by variant markers: the stripped bases are equal after
// normalization while the marker sets differ.
func (vc *VariantClassifier) ExplainsAsVariant(titleA, titleB string) ([]string, bool) {
	baseA, markersA := vc.StripVariantMarkers(titleA)
	baseB, markersB := vc.StripVariantMarkers(titleB)

	if len(markersA) == 0 && len(markersB) == 0 {
		return nil, false
	}
	if normalizers.NormalizeTitle(baseA) != normalizers.NormalizeTitle(baseB) {
		return nil, false
	}
	if sameMarkerSet(markersA, markersB) {
		return nil, false
	}

	all := append(append([]string{}, markersA...), markersB...)
	return dedupeStrings(all), true
}

// FeaturingDelta holds the result of a featuring comparison
type FeaturingDelta struct {
	BaseA          string
	BaseB          string
	FeaturingA     []string
	FeaturingB     []string
	BaseSimilarity float64
}

// FeaturingDifference reports whether two titles share a base song
// (featuring stripped, similarity >= baseThreshold) while declaring
// different featuring artists.
func (vc *VariantClassifier) FeaturingDifference(titleA, titleB string, featA, featB []string, baseThreshold float64) (FeaturingDelta, bool) {
	baseA, extractedA := normalizers.ExtractFeaturing(titleA)
	baseB, extractedB := normalizers.ExtractFeaturing(titleB)

	setA := normalizedNameSet(append(featA, extractedA...))
	setB := normalizedNameSet(append(featB, extractedB...))

	delta := FeaturingDelta{
		BaseA:          baseA,
		BaseB:          baseB,
		FeaturingA:     sortedKeys(setA),
		FeaturingB:     sortedKeys(setB),
		BaseSimilarity: vc.scorer.TitleSimilarity(baseA, baseB),
	}

	if delta.BaseSimilarity < baseThreshold {
		return delta, false
	}
	if sameStringSet(setA, setB) {
		return delta, false
	}
	if len(setA) == 0 && len(setB) == 0 {
		return delta, false
	}
	return delta, true
}

func (vc *VariantClassifier) markerTag(group string) string {
	for _, rule := range vc.rules {
		if rule.Pattern.MatchString(group) {
			return rule.Tag
		}
	}
	return ""
}

func (vc *VariantClassifier) trailingMarkerTag(title string) string {
	fields := strings.Fields(title)
	if len(fields) < 2 {
		return ""
	}
	last := fields[len(fields)-1]
	for _, rule := range vc.rules {
		if rule.Pattern.MatchString(last) && rule.Pattern.FindString(last) == last {
			return rule.Tag
		}
	}
	return ""
}

func matchedGroup(s string, loc []int) string {
	for i := 2; i < len(loc); i += 2 {
		if loc[i] >= 0 {
			return s[loc[i]:loc[i+1]]
		}
	}
	return s[loc[0]:loc[1]]
}

func sameMarkerSet(a, b []string) bool {
	return sameStringSet(stringSet(a), stringSet(b))
}

func stringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func normalizedNameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		nn := normalizers.NormalizePersonName(n)
		if nn != "" {
			set[nn] = struct{}{}
		}
	}
	return set
}

func sameStringSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
