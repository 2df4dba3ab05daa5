package attention

import (
	"fmt"

	"leasebook/internal/enums"
	"leasebook/internal/lease"
	"leasebook/internal/payment"
)

// Coverage is how many of a month's expected categories have at least one
// declaration.
type Coverage struct {
	ExpectedCategories []enums.Category `json:"expected_categories"`
	CoveredCategories  []enums.Category `json:"covered_categories"`
	MissingCategories  []enums.Category `json:"missing_categories"`
	CoverageSummary    *string          `json:"coverage_summary"`
	IsComplete         bool             `json:"is_complete"`
}

// ComputeMonthlyCoverage compares the expected categories with the
// categories declared in monthPayments. Category order follows expected.
func ComputeMonthlyCoverage(expected []lease.ExpectedPayment, monthPayments []payment.Confirmation) Coverage {
	declared := map[enums.Category]bool{}
	for _, pc := range monthPayments {
		declared[pc.ConfirmationType] = true
	}

	c := Coverage{
		ExpectedCategories: []enums.Category{},
		CoveredCategories:  []enums.Category{},
		MissingCategories:  []enums.Category{},
	}
	for _, ep := range expected {
		if !ep.Expected {
			continue
		}
		c.ExpectedCategories = append(c.ExpectedCategories, ep.Type)
		if declared[ep.Type] {
			c.CoveredCategories = append(c.CoveredCategories, ep.Type)
		} else {
			c.MissingCategories = append(c.MissingCategories, ep.Type)
		}
	}

	total, covered := len(c.ExpectedCategories), len(c.CoveredCategories)
	if total > 0 {
		s := fmt.Sprintf("%d / %d", covered, total)
		c.CoverageSummary = &s
	}
	c.IsComplete = total == 0 || covered >= total
	return c
}
