package matcher

import (
	"regexp"
	"strings"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/logger"
)

type compiledPattern struct {
	pattern models.Pattern
	re      *regexp.Regexp
	literal string
	invalid bool
}

// PatternSet is an immutable, precompiled snapshot of the active patterns
// for one batch. A pattern whose regular expression does not compile is kept
// but never matches.
type PatternSet struct {
	patterns []compiledPattern
}

// CompilePatterns builds a PatternSet, logging each invalid regular expression once
func CompilePatterns(patterns []models.Pattern) *PatternSet {
	log := logger.GetGlobalLogger().WithComponent("pattern_set")
	set := &PatternSet{patterns: make([]compiledPattern, 0, len(patterns))}

	for _, p := range patterns {
		cp := compiledPattern{pattern: p}
		if p.IsRegex {
			re, err := regexp.Compile("(?i)" + p.Value)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"pattern_id": p.ID,
					"pattern":    p.Value,
				}).Warn("Invalid regex pattern")
				cp.invalid = true
			}
			cp.re = re
		} else {
			cp.literal = strings.ToLower(p.Value)
		}
		set.patterns = append(set.patterns, cp)
	}
	return set
}

// Len returns the number of patterns in the set, including invalid ones
func (s *PatternSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Patterns returns a copy of the source patterns
func (s *PatternSet) Patterns() []models.Pattern {
	if s == nil {
		return nil
	}
	out := make([]models.Pattern, len(s.patterns))
	for i, cp := range s.patterns {
		out[i] = cp.pattern
	}
	return out
}

// MatchesAccount reports whether any pattern matches tx and targets accountID
func (s *PatternSet) MatchesAccount(tx *models.Transaction, accountID string) bool {
	if s == nil {
		return false
	}
	for i := range s.patterns {
		cp := &s.patterns[i]
		if !cp.matches(tx) {
			continue
		}
		if cp.pattern.TargetID != "" && cp.pattern.TargetID == accountID {
			return true
		}
	}
	return false
}

func (cp *compiledPattern) matches(tx *models.Transaction) bool {
	if cp.invalid || !cp.pattern.Kind.IsValid() {
		return false
	}
	field := cp.pattern.Field(tx)
	if cp.re != nil {
		return cp.re.MatchString(field)
	}
	return strings.Contains(strings.ToLower(field), cp.literal)
}
