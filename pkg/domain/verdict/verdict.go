package verdict

// Source identifies which classifier produced a verdict.
type Source string

const (
	SourceOracle        Source = "oracle"
	SourceHeuristic     Source = "heuristic"
	SourceFallbackError Source = "fallback-error"
)

// Category vocabulary. The oracle categories mirror the moderation endpoint;
// bullying and mixed are produced by the local heuristic analyzer only.
const (
	CategorySexual                = "sexual"
	CategorySexualMinors          = "sexual/minors"
	CategoryViolence              = "violence"
	CategoryViolenceGraphic       = "violence/graphic"
	CategoryHarassment            = "harassment"
	CategoryHarassmentThreatening = "harassment/threatening"
	CategoryHate                  = "hate"
	CategorySelfHarm              = "self-harm"
	CategoryIllicit               = "illicit"

	CategoryBullying = "bullying"
	CategoryMixed    = "mixed"
)

// OracleCategories lists every category the oracle can score.
func OracleCategories() []string {
	return []string{
		CategorySexual,
		CategorySexualMinors,
		CategoryViolence,
		CategoryViolenceGraphic,
		CategoryHarassment,
		CategoryHarassmentThreatening,
		CategoryHate,
		CategorySelfHarm,
		CategoryIllicit,
	}
}

// IsSexual reports whether a category belongs to the sexual family, the only
// family eligible for tiered forgiveness.
func IsSexual(category string) bool {
	return category == CategorySexual || category == CategorySexualMinors
}

// Classification is the normalized result of running content through either
// the oracle or the local heuristic analyzer.
type Classification struct {
	Source            Source             `json:"source"`
	IsFlagged         bool               `json:"is_flagged"`
	CategoryScores    map[string]float64 `json:"category_scores,omitempty"`
	FlaggedCategories []string           `json:"flagged_categories,omitempty"`

	// Heuristic-only fields. Confidence has no comparable numeric scale to
	// the oracle scores and must never be checked against score thresholds.
	Confidence  float64 `json:"confidence,omitempty"`
	Blocked     bool    `json:"blocked,omitempty"`
	Educational bool    `json:"educational,omitempty"`
}

// FailOpen is the verdict used when the oracle is unreachable or returned a
// malformed response. It must never flag content: refusing service on a
// classifier outage is worse than occasionally missing a violation.
func FailOpen() Classification {
	return Classification{
		Source:         SourceFallbackError,
		IsFlagged:      false,
		CategoryScores: map[string]float64{},
	}
}

// SexualOnly reports whether every flagged category is in the sexual family.
// A verdict with no flagged categories is not sexual-only.
func (c Classification) SexualOnly() bool {
	if len(c.FlaggedCategories) == 0 {
		return false
	}
	for _, cat := range c.FlaggedCategories {
		if !IsSexual(cat) {
			return false
		}
	}
	return true
}

// DominantCategory returns the flagged category that should drive the
// user-facing message: the first non-sexual category when one exists,
// otherwise the first flagged category.
func (c Classification) DominantCategory() string {
	if len(c.FlaggedCategories) == 0 {
		return ""
	}
	for _, cat := range c.FlaggedCategories {
		if !IsSexual(cat) {
			return cat
		}
	}
	return c.FlaggedCategories[0]
}
