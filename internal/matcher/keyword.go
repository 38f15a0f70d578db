package matcher

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/markalosey/design-patterns-mcp-sub000/pkg/types"
)

// Keyword weights per field. A hit in the name counts most.
const (
	nameWeight        = 3.0
	categoryWeight    = 2.0
	descriptionWeight = 1.0
	tagWeight         = 1.0

	// keywordNormalizer maps weighted hit counts into [0, maxKeywordScore]
	keywordNormalizer = 10.0
	maxKeywordScore   = 0.99
	minTokenLength    = 3
)

// tokenize lowercases the query, turns punctuation into separators and
// drops tokens of two characters or fewer. Duplicates are removed, first
// occurrence wins.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLength {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// keywordHit is the keyword leg's verdict on one pattern
type keywordHit struct {
	score   float64
	reasons []string
}

// scoreKeywords computes the weighted hit count of tokens against p
func scoreKeywords(p *types.Pattern, tokens []string) keywordHit {
	name := strings.ToLower(p.Name)
	category := strings.ToLower(p.Category)
	description := strings.ToLower(p.Description)

	var hit keywordHit
	var total float64
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			total += nameWeight
			hit.reasons = append(hit.reasons, fmt.Sprintf("pattern name contains '%s'", tok))
		}
		if strings.Contains(category, tok) {
			total += categoryWeight
			hit.reasons = append(hit.reasons, fmt.Sprintf("category matches '%s'", tok))
		}
		if strings.Contains(description, tok) {
			total += descriptionWeight
			hit.reasons = append(hit.reasons, fmt.Sprintf("description mentions '%s'", tok))
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), tok) {
				total += tagWeight
				hit.reasons = append(hit.reasons, fmt.Sprintf("tagged '%s'", tag))
				break
			}
		}
	}

	hit.score = math.Min(total/keywordNormalizer, maxKeywordScore)
	return hit
}
