package abx

import (
	"context"
	"strings"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// Validation messages shown next to the offending field.
const (
	MsgTitleNotUnique        = "Title must be unique"
	MsgAbbreviationNotUnique = "Abbreviation must be unique"
)

// ValidateTitle rejects a title already used by another antibiotic. uid is the
// record being edited and is empty on create. Empty values and values equal
// to the record's stored title are accepted without a lookup.
func ValidateTitle(view core.TransactionView, uid, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if uid != "" {
		if a, ok := view.FindAntibiotic(uid); ok && a.Title == value {
			return nil
		}
	}
	if titleTaken(view, uid, value) {
		return &domain.FieldError{Field: "title", Message: MsgTitleNotUnique}
	}
	return nil
}

// ValidateAbbreviation rejects an abbreviation already used by another
// antibiotic. Abbreviations are not catalogued, so every antibiotic is loaded
// and compared.
func ValidateAbbreviation(view core.TransactionView, uid, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if uid != "" {
		if a, ok := view.FindAntibiotic(uid); ok && a.Abbreviation == value {
			return nil
		}
	}
	if abbreviationTaken(view, uid, value) {
		return &domain.FieldError{Field: "abbreviation", Message: MsgAbbreviationNotUnique}
	}
	return nil
}

func titleTaken(view core.TransactionView, exceptUID, title string) bool {
	for _, b := range view.Search(core.Query{PortalType: domain.TypeAntibiotic, Title: title}) {
		if b.UID != exceptUID {
			return true
		}
	}
	return false
}

func abbreviationTaken(view core.TransactionView, exceptUID, abbreviation string) bool {
	for uid, a := range antibiotics(view) {
		if uid != exceptUID && a.Abbreviation == abbreviation {
			return true
		}
	}
	return false
}

// RuleUniqueFields is the name of the uniqueness rule.
const RuleUniqueFields = "antibiotic_unique_fields"

// uniqueFieldsRule re-checks title and abbreviation uniqueness against the
// transaction's final state. It runs under the store's write lock, so two
// concurrent saves cannot both pass.
type uniqueFieldsRule struct{}

func (uniqueFieldsRule) Name() string { return RuleUniqueFields }

type fieldValues struct {
	title, abbreviation string
}

func (uniqueFieldsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	// Values a record held before this transaction. Unchanged values are
	// not re-checked so existing duplicates do not block unrelated edits.
	prior := make(map[string]fieldValues)
	fresh := make(map[string]bool)
	for _, ch := range changes {
		if uid, vals, ok := beforeValues(ch.Before); ok {
			if _, seen := prior[uid]; !seen && !fresh[uid] {
				prior[uid] = vals
			}
		}
		if a, ok := ch.After.(domain.Antibiotic); ok && ch.Action == domain.ActionCreate {
			if _, seen := prior[a.UID]; !seen {
				fresh[a.UID] = true
			}
		}
	}

	var res domain.Result
	checked := make(map[string]struct{})
	for _, ch := range changes {
		after, ok := ch.After.(domain.Antibiotic)
		if !ok {
			continue
		}
		if _, done := checked[after.UID]; done {
			continue
		}
		checked[after.UID] = struct{}{}
		current, ok := view.FindAntibiotic(after.UID)
		if !ok {
			continue
		}
		was, existed := prior[current.UID]
		if current.Title != "" && (!existed || was.title != current.Title) && titleTaken(view, current.UID, current.Title) {
			res.Violations = append(res.Violations, violation(current, "title", MsgTitleNotUnique))
		}
		if current.Abbreviation != "" && (!existed || was.abbreviation != current.Abbreviation) && abbreviationTaken(view, current.UID, current.Abbreviation) {
			res.Violations = append(res.Violations, violation(current, "abbreviation", MsgAbbreviationNotUnique))
		}
	}
	return res, nil
}

func beforeValues(before any) (string, fieldValues, bool) {
	switch b := before.(type) {
	case domain.Antibiotic:
		return b.UID, fieldValues{b.Title, b.Abbreviation}, true
	case domain.LegacyAntibiotic:
		return b.UID, fieldValues{b.Title, b.Abbreviation()}, true
	}
	return "", fieldValues{}, false
}

func violation(a domain.Antibiotic, field, msg string) domain.Violation {
	return domain.Violation{
		Rule:     RuleUniqueFields,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityAntibiotic,
		EntityID: a.UID,
		Field:    field,
	}
}
