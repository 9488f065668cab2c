package abx

import (
	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// VocabularyAntibioticClasses names the antibiotic class vocabulary.
const VocabularyAntibioticClasses = "abx.vocabularies.antibiotic_classes"

// AntibioticClassesVocabulary lists active antibiotic classes ordered by
// sortable title. The UID is both value and token.
func AntibioticClassesVocabulary(view core.TransactionView) []core.Term {
	brains := view.Search(core.Query{
		PortalType: domain.TypeAntibioticClass,
		IsActive:   domain.Active(true),
		SortOn:     domain.SortOnTitle,
		SortOrder:  domain.SortAscending,
	})
	terms := make([]core.Term, 0, len(brains))
	for _, b := range brains {
		terms = append(terms, core.Term{Value: b.UID, Token: b.UID, Title: b.Title})
	}
	return terms
}
