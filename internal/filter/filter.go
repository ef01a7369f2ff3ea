// Package filter holds the pure view computations over the pass working set:
// the visible subset for the active filter state and the materialized tallies.
package filter

import (
	"strings"

	"github.com/securelane/gatepass/internal/domain"
)

// All is the sentinel for an inactive categorical constraint.
const All = "all"

type Filters struct {
	Search   string `json:"search"`
	Status   string `json:"status"`
	PassType string `json:"pass_type"`
	Category string `json:"category"`
}

// Normalized returns a copy with the search term trimmed and empty
// categorical constraints replaced by the sentinel.
func (f Filters) Normalized() Filters {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status == "" {
		f.Status = All
	}
	if f.PassType == "" {
		f.PassType = All
	}
	if f.Category == "" {
		f.Category = All
	}
	return f
}

// Apply computes the visible subset. Active constraints combine with AND and
// the relative order of the input is preserved.
func Apply(passes []domain.VisitorPass, f Filters) []domain.VisitorPass {
	f = f.Normalized()
	out := make([]domain.VisitorPass, 0, len(passes))
	for _, p := range passes {
		if matches(&p, f) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p *domain.VisitorPass, f Filters) bool {
	if f.Status != All && string(p.Status) != f.Status {
		return false
	}
	if f.PassType != All && string(p.PassType) != f.PassType {
		return false
	}
	if f.Category != All && p.Category != f.Category {
		return false
	}
	return matchesSearch(p, f.Search)
}

func matchesSearch(p *domain.VisitorPass, term string) bool {
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	for _, hay := range []string{
		p.PassID, p.VisitorName, p.MobileNumber, p.EmailID, p.WhomToMeet, p.PurposeOfVisit,
	} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// Counts are the aggregate figures shown above the pass table.
type Counts struct {
	Total     int `json:"total"`
	Approved  int `json:"approved"`
	Pending   int `json:"pending"`
	Rejected  int `json:"rejected"`
	OneTime   int `json:"one_time"`
	Recurring int `json:"recurring"`
	Permanent int `json:"permanent"`
}

// Tally is the materialized counting strategy over an already-fetched
// collection. Status figures honor the search term and category; the
// pass-type breakdown honors the categorical constraints only.
func Tally(passes []domain.VisitorPass, f Filters) Counts {
	f = f.Normalized()

	searched := Apply(passes, Filters{Search: f.Search, Status: All, PassType: All, Category: f.Category})
	c := Counts{Total: len(searched)}
	for _, p := range searched {
		switch p.Status {
		case domain.StatusApproved:
			c.Approved++
		case domain.StatusPending:
			c.Pending++
		case domain.StatusRejected:
			c.Rejected++
		}
	}

	typed := Apply(passes, Filters{Status: f.Status, PassType: All, Category: f.Category})
	for _, p := range typed {
		switch p.PassType {
		case domain.PassOneTime:
			c.OneTime++
		case domain.PassRecurring:
			c.Recurring++
		case domain.PassPermanent:
			c.Permanent++
		}
	}
	return c
}
