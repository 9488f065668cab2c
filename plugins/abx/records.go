package abx

import (
	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// antibiotics loads every record catalogued as an Antibiotic, keyed by UID.
// Records still in the pre-1200 flat representation are converted on the fly
// so readers see one shape regardless of migration state.
func antibiotics(view core.TransactionView) map[string]core.Antibiotic {
	brains := view.Search(core.Query{PortalType: domain.TypeAntibiotic})
	out := make(map[string]core.Antibiotic, len(brains))
	var legacy map[string]domain.LegacyAntibiotic
	for _, b := range brains {
		if a, ok := view.FindAntibiotic(b.UID); ok {
			out[b.UID] = a
			continue
		}
		if legacy == nil {
			legacy = make(map[string]domain.LegacyAntibiotic)
			for _, l := range view.ListLegacyAntibiotics() {
				legacy[l.UID] = l
			}
		}
		if l, ok := legacy[b.UID]; ok {
			out[b.UID] = fromLegacy(l)
		}
	}
	return out
}

// fromLegacy copies a flat record into the folderish representation. Identity,
// placement, workflow state and timestamps are kept.
func fromLegacy(l domain.LegacyAntibiotic) core.Antibiotic {
	a := core.Antibiotic{Base: l.Base}
	a.PortalType = domain.TypeAntibiotic
	a.Abbreviation = l.Abbreviation()
	a.AntibioticClassUID = l.AntibioticClassUID()
	return a
}

// ResolveAntibioticClass follows the class reference of a. Empty and
// dangling references resolve to false.
func ResolveAntibioticClass(view core.TransactionView, a core.Antibiotic) (core.AntibioticClass, bool) {
	if a.AntibioticClassUID == "" {
		return core.AntibioticClass{}, false
	}
	return view.FindAntibioticClass(a.AntibioticClassUID)
}
