// internal/salary/salary.go

// Package salary estimates a salary band for a candidate from the salaries of
// semantically similar open jobs.
package salary

import (
	"errors"
	"math"
	"sort"
	"strings"

	"match-pipeline/internal/models"
)

var (
	ErrFixedRangeMismatch = errors.New("salary: fixed salary has different min and max")
	ErrUnknownSalaryShape = errors.New("salary: unknown salary shape")
)

// Normalized is a job salary reduced to a single comparable amount.
type Normalized struct {
	Value    float64
	Currency string
}

// NormalizeSalary reduces s to one amount. Salaries without an amount
// (negotiable, not disclosed) return nil and no error.
func NormalizeSalary(s models.Salary) (*Normalized, error) {
	switch s.Type {
	case models.SalaryNegotiable, models.SalaryNotDisclosed:
		return nil, nil
	case models.SalaryFixed:
		if s.Min == nil {
			break
		}
		if s.Max != nil && *s.Max != *s.Min {
			return nil, ErrFixedRangeMismatch
		}
		return &Normalized{Value: *s.Min, Currency: s.Currency}, nil
	case models.SalaryRange:
		if s.Min == nil || s.Max == nil {
			break
		}
		return &Normalized{Value: (*s.Min + *s.Max) / 2, Currency: s.Currency}, nil
	}
	return nil, ErrUnknownSalaryShape
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	index := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

// IsExperienceCompatible reports whether years of experience fall in the
// band accepted for a job level. Adjacent bands overlap.
func IsExperienceCompatible(years float64, level models.ExperienceLevel) bool {
	switch level {
	case models.ExperienceJunior:
		return years <= 2
	case models.ExperienceMid:
		return years >= 2 && years <= 5
	case models.ExperienceSenior:
		return years >= 4
	case models.ExperienceLead:
		return years >= 7
	}
	return false
}

// TopSkills returns the first n skills of at least 3 characters, trimmed
// and lowercased.
func TopSkills(skills []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range skills {
		if len(out) == n {
			break
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if len(s) >= 3 {
			out = append(out, s)
		}
	}
	return out
}
