package types

// MatchType tells which scoring legs produced a recommendation
type MatchType string

const (
	MatchKeyword  MatchType = "keyword"
	MatchSemantic MatchType = "semantic"
	MatchHybrid   MatchType = "hybrid"
)

// ScoreBreakdown holds the per-leg scores behind a recommendation.
// A leg that did not match scores 0.
type ScoreBreakdown struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Final    float64 `json:"final"`
}

// Recommendation is one ranked result of a pattern search
type Recommendation struct {
	Pattern        Pattern        `json:"pattern"`
	Rank           int            `json:"rank"` // Position in result set (1-based)
	Confidence     float64        `json:"confidence"`
	MatchType      MatchType      `json:"match_type"`
	Reasons        []string       `json:"reasons"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
}

// Validate checks a recommendation is complete
func (r *Recommendation) Validate() error {
	if r.Pattern.ID == "" {
		return ErrMissingPatternID
	}
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	switch r.MatchType {
	case MatchKeyword, MatchSemantic, MatchHybrid:
	default:
		return ErrInvalidMatchType
	}
	if len(r.Reasons) == 0 {
		return ErrMissingReasons
	}
	return nil
}

// Clone returns a deep copy
func (r Recommendation) Clone() Recommendation {
	r.Pattern.Tags = append([]string(nil), r.Pattern.Tags...)
	r.Pattern.WhenToUse = append([]string(nil), r.Pattern.WhenToUse...)
	r.Reasons = append([]string(nil), r.Reasons...)
	return r
}
