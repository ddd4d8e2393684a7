package heuristics

import (
	"strings"

	"github.com/juttuchat/modguard/pkg/domain/verdict"
	"github.com/sirupsen/logrus"
)

const (
	confidenceHarmful     = 0.9
	confidenceSafe        = 0.95
	confidenceEducational = 0.8
	confidenceShort       = 0.8
	confidenceWarnOnly    = 0.6

	// Messages shorter than this that contain bare sexual terms are assumed
	// to lack redeeming context.
	minContextLength = 10
)

// substitutions map the common character-substitution spellings back to the
// plain term before any matching (s3ksi -> seksi, p0rn -> porn).
var substitutions = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// Analyzer is the local, in-process text classifier. It is pure computation:
// no network, no ledger access. Used as the fallback when the oracle is
// unavailable and as a secondary signal otherwise.
type Analyzer struct {
	logger *logrus.Logger
}

func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze evaluates a single text in strict order, first match wins:
// harmful patterns, then absence of sexual terms, then allowed-context
// rescue, then the short-message rule, then warn-only.
func (a *Analyzer) Analyze(text string) verdict.Classification {
	normalized := normalize(text)

	if fam, matched := matchHarmful(normalized); matched {
		a.logger.WithFields(logrus.Fields{
			"category": string(fam),
		}).Debug("heuristic harmful pattern matched")
		return verdict.Classification{
			Source:            verdict.SourceHeuristic,
			IsFlagged:         true,
			Blocked:           true,
			Confidence:        confidenceHarmful,
			FlaggedCategories: []string{familyCategory(fam)},
		}
	}

	terms := matchSexualTerms(normalized)
	if len(terms) == 0 {
		return verdict.Classification{
			Source:     verdict.SourceHeuristic,
			Confidence: confidenceSafe,
		}
	}

	if matchAllowedContext(normalized) {
		return verdict.Classification{
			Source:      verdict.SourceHeuristic,
			Confidence:  confidenceEducational,
			Educational: true,
		}
	}

	if len([]rune(strings.TrimSpace(text))) < minContextLength {
		return verdict.Classification{
			Source:            verdict.SourceHeuristic,
			IsFlagged:         true,
			Blocked:           true,
			Confidence:        confidenceShort,
			FlaggedCategories: []string{verdict.CategorySexual},
		}
	}

	return verdict.Classification{
		Source:            verdict.SourceHeuristic,
		IsFlagged:         true,
		Blocked:           false,
		Confidence:        confidenceWarnOnly,
		FlaggedCategories: []string{verdict.CategorySexual},
	}
}

func normalize(text string) string {
	return substitutions.Replace(strings.ToLower(text))
}

// matchHarmful returns the matching pattern family; when patterns from more
// than one family match the same text the result is the mixed category.
func matchHarmful(normalized string) (family, bool) {
	matched := map[family]bool{}
	var first family
	for _, p := range harmfulPatterns {
		if p.re.MatchString(normalized) {
			if len(matched) == 0 {
				first = p.family
			}
			matched[p.family] = true
		}
	}
	switch len(matched) {
	case 0:
		return "", false
	case 1:
		return first, true
	default:
		return family(verdict.CategoryMixed), true
	}
}

func matchSexualTerms(normalized string) []string {
	var found []string
	for _, term := range sexualTerms {
		if strings.Contains(normalized, term) {
			found = append(found, term)
		}
	}
	return found
}

func matchAllowedContext(normalized string) bool {
	for _, re := range allowedContextPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func familyCategory(fam family) string {
	switch fam {
	case familySexual:
		return verdict.CategorySexual
	case familyViolence:
		return verdict.CategoryViolence
	case familyBullying:
		return verdict.CategoryBullying
	default:
		return verdict.CategoryMixed
	}
}
