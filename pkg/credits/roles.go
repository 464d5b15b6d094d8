// Package credits normalizes raw credit text into typed credit records and
// consolidates duplicates across sources
package credits

import (
	"regexp"
	"strings"

	"github.com/Ramsey-B/chorus/pkg/models"
)

// roleRule maps role text to a credit type. Rules are checked in order;
// the first match wins, so specific roles sit above generic ones.
type roleRule struct {
	creditType models.CreditType
	pattern    *regexp.Regexp
}

// generalRoleRules cover role language common to every genre and provider
var generalRoleRules = []roleRule{
	{models.CreditTypeExecutiveProducer, regexp.MustCompile(`(?i)\bexec(?:utive)?\.?\s+produc`)},
	{models.CreditTypeCoProducer, regexp.MustCompile(`(?i)\bco[-\s]?produc`)},
	{models.CreditTypeVocalProducer, regexp.MustCompile(`(?i)\bvocal\s+produc`)},
	{models.CreditTypeProducer, regexp.MustCompile(`(?i)\bproduc(?:er|ed|tion)?\b`)},
	{models.CreditTypeMixingEngineer, regexp.MustCompile(`(?i)\bmix(?:ing|ed|er)?(?:\s+(?:engineer|by))?\b`)},
	{models.CreditTypeMasteringEngineer, regexp.MustCompile(`(?i)\bmaster(?:ing|ed)?(?:\s+(?:engineer|by))?\b`)},
	{models.CreditTypeRecordingEngineer, regexp.MustCompile(`(?i)\brecord(?:ing|ed)(?:\s+(?:engineer|by))?\b`)},
	{models.CreditTypeEngineer, regexp.MustCompile(`(?i)\bengineer(?:ing|ed)?\b`)},
	{models.CreditTypeWriter, regexp.MustCompile(`(?i)\b(?:song\s?)?writ(?:er|ing|ten)\b`)},
	{models.CreditTypeComposer, regexp.MustCompile(`(?i)\bcompos(?:er|ed|ition)\b`)},
	{models.CreditTypeLyricist, regexp.MustCompile(`(?i)\blyric(?:s|ist)?\b`)},
	{models.CreditTypePrimaryArtist, regexp.MustCompile(`(?i)\b(?:primary|main|lead)\s+artist\b`)},
	{models.CreditTypeFeaturedArtist, regexp.MustCompile(`(?i)\bfeat(?:\.|uring|ured)?\b`)},
	{models.CreditTypeBackgroundVocals, regexp.MustCompile(`(?i)\b(?:background|backing)\s+vocal`)},
	{models.CreditTypeVocalist, regexp.MustCompile(`(?i)\b(?:vocal(?:s|ist)?|singer|sung)\b`)},
	{models.CreditTypeInstrumentalist, regexp.MustCompile(`(?i)\b(?:guitar|bass|drum|percussion|piano|keyboard|keys|synth|violin|strings|horn|sax(?:ophone)?|trumpet|flute|instrument)`)},
	{models.CreditTypeSampleSource, regexp.MustCompile(`(?i)\bsampl(?:e|es|ed|ing)\b`)},
}

// hipHopRoleRules catch genre shorthand the general table misses
var hipHopRoleRules = []roleRule{
	{models.CreditTypeCoProducer, regexp.MustCompile(`(?i)\bco[-\s]?prod\b`)},
	{models.CreditTypeProducer, regexp.MustCompile(`(?i)\b(?:prod|beats?|beatmaker|on\s+the\s+beat|instrumental\s+by)\b`)},
	{models.CreditTypeFeaturedArtist, regexp.MustCompile(`(?i)\b(?:ft|with)\b`)},
	{models.CreditTypeSampleSource, regexp.MustCompile(`(?i)\binterpolat`)},
	{models.CreditTypeVocalist, regexp.MustCompile(`(?i)\b(?:hook|ad[-\s]?libs?)\b`)},
}

// productionKeywordRE flags production language buried in raw credit text,
// used by the hidden-producer pass
var productionKeywordRE = regexp.MustCompile(`(?i)\b(?:produc|prod\.|beats?\b|beatmaker|on\s+the\s+beat)`)

var decorationREs = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(uncredited\)`),
	regexp.MustCompile(`(?i)\[uncredited\]`),
	regexp.MustCompile(`(?i)^\s*credited\s+as\b`),
	regexp.MustCompile(`(?i)^\s*additional\b`),
}

// CleanRoleText strips decorations that carry no role information
func CleanRoleText(raw string) string {
	cleaned := raw
	for _, re := range decorationREs {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	return strings.Trim(strings.Join(strings.Fields(cleaned), " "), " .,:;-")
}

// ResolveRole maps raw role text to a credit type. The second return is
// true when the whole cleaned text is the role itself, with no extra words;
// those exact matches earn a confidence bonus.
func ResolveRole(rawRole string) (models.CreditType, bool) {
	cleaned := CleanRoleText(rawRole)
	if cleaned == "" {
		return models.CreditTypeOther, false
	}

	for _, table := range [][]roleRule{generalRoleRules, hipHopRoleRules} {
		for _, rule := range table {
			if rule.pattern.MatchString(cleaned) {
				exact := strings.EqualFold(rule.pattern.FindString(cleaned), cleaned)
				return rule.creditType, exact
			}
		}
	}
	return models.CreditTypeOther, false
}

// HasProductionKeywords reports whether raw credit text hints at production
// work even though the resolved role says otherwise
func HasProductionKeywords(rawText string) bool {
	return productionKeywordRE.MatchString(rawText)
}
