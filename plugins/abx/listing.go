package abx

import (
	"fmt"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// ReviewState selects which antibiotics a listing shows.
type ReviewState string

const (
	ReviewStateActive   ReviewState = "default"
	ReviewStateInactive ReviewState = "inactive"
	ReviewStateAll      ReviewState = "all"
)

// OtherCategory is the category of antibiotics without a resolvable class.
const OtherCategory = "Other"

// ListingRow is one antibiotic in a folder listing.
type ListingRow struct {
	UID          string `json:"uid" yaml:"uid"`
	Title        string `json:"title" yaml:"title"`
	Abbreviation string `json:"abbreviation" yaml:"abbreviation"`
	Category     string `json:"category" yaml:"category"`
	CategoryUID  string `json:"category_uid,omitempty" yaml:"category_uid,omitempty"`
	Description  string `json:"description" yaml:"description"`
	Active       bool   `json:"active" yaml:"active"`
}

// ListAntibiotics returns the antibiotics in review state, sorted by title.
func ListAntibiotics(view core.TransactionView, state ReviewState) ([]ListingRow, error) {
	q := core.Query{PortalType: domain.TypeAntibiotic, SortOn: domain.SortOnTitle, SortOrder: domain.SortAscending}
	switch state {
	case ReviewStateActive, "":
		q.IsActive = domain.Active(true)
	case ReviewStateInactive:
		q.IsActive = domain.Active(false)
	case ReviewStateAll:
	default:
		return nil, fmt.Errorf("unknown review state %q", state)
	}
	records := antibiotics(view)
	brains := view.Search(q)
	rows := make([]ListingRow, 0, len(brains))
	for _, b := range brains {
		a, ok := records[b.UID]
		if !ok {
			continue
		}
		row := ListingRow{
			UID:          a.UID,
			Title:        a.Title,
			Abbreviation: a.Abbreviation,
			Category:     OtherCategory,
			Description:  a.Description,
			Active:       a.Active,
		}
		if class, ok := ResolveAntibioticClass(view, a); ok {
			row.Category = class.Title
			row.CategoryUID = class.UID
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Categories returns the titles of all antibiotic classes, active or not,
// ordered by sortable title.
func Categories(view core.TransactionView) []string {
	brains := view.Search(core.Query{
		PortalType: domain.TypeAntibioticClass,
		SortOn:     domain.SortOnTitle,
		SortOrder:  domain.SortAscending,
	})
	out := make([]string, 0, len(brains))
	for _, b := range brains {
		out = append(out, b.Title)
	}
	return out
}
