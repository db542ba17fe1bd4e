package middleware

import (
	"context"
	"regexp"
	"slices"

	"github.com/aretw0/testflow/pkg/domain"
	"github.com/aretw0/testflow/pkg/ports"
)

// Mask replaces secret values in stored reports.
const Mask = "***"

// DefaultSecretPatterns matches common credential variable names.
var DefaultSecretPatterns = []string{`(?i)password`, `(?i)secret`, `(?i)token`, `(?i)api[_-]?key`, `(?i)authorization`}

type maskingMiddleware struct {
	ports.FlowRepository
	patterns []*regexp.Regexp
}

// NewMaskingMiddleware masks report final variables whose keys match a pattern.
// Flow variables are left intact since runs need their real values.
func NewMaskingMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.FlowRepository) ports.FlowRepository {
		return &maskingMiddleware{FlowRepository: next, patterns: patterns}
	}
}

func (m *maskingMiddleware) SaveRunReport(ctx context.Context, flowID string, report *domain.RunReport) error {
	// Clone so the caller's in-memory report keeps real values.
	masked := *report
	masked.FinalVariables = domain.CloneConfig(report.FinalVariables)
	masked.Results = slices.Clone(report.Results)

	m.maskMap(masked.FinalVariables)
	for i, r := range masked.Results {
		if r.AssertionResults == nil {
			continue
		}
		results := slices.Clone(r.AssertionResults)
		for j := range results {
			if m.matches(results[j].Name) {
				results[j].Actual = Mask
			}
		}
		masked.Results[i].AssertionResults = results
	}
	return m.FlowRepository.SaveRunReport(ctx, flowID, &masked)
}

func (m *maskingMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *maskingMiddleware) maskMap(vars map[string]any) {
	for k, v := range vars {
		if m.matches(k) {
			vars[k] = Mask
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			m.maskMap(sub)
		}
	}
}
