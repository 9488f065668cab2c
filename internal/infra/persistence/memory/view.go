package memory

import (
	"sort"

	"abxcore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state to rules and readers.
type transactionView struct {
	state *memoryState
}

func (v transactionView) Search(q domain.Query) []domain.Brain {
	return v.state.catalog.Search(q)
}

func (v transactionView) SetupRoot() (Folder, bool) {
	for _, f := range v.state.folders {
		if f.ParentUID == "" && f.ID == domain.SetupRootID {
			return f, true
		}
	}
	return Folder{}, false
}

func (v transactionView) FindFolder(uid string) (Folder, bool) {
	f, ok := v.state.folders[uid]
	return f, ok
}

func (v transactionView) FindAntibioticClass(uid string) (AntibioticClass, bool) {
	c, ok := v.state.classes[uid]
	return c, ok
}

func (v transactionView) FindAntibiotic(uid string) (Antibiotic, bool) {
	a, ok := v.state.antibiotics[uid]
	return a, ok
}

func (v transactionView) FindRecord(uid string) (domain.Base, bool) {
	b, _, ok := v.state.record(uid)
	return b, ok
}

func (v transactionView) ChildByID(parentUID, id string) (domain.Base, bool) {
	for _, b := range v.state.children(parentUID) {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Base{}, false
}

func (v transactionView) Children(parentUID string) []domain.Base {
	return v.state.children(parentUID)
}

func (v transactionView) ListAntibioticClasses() []AntibioticClass {
	out := make([]AntibioticClass, 0, len(v.state.classes))
	for _, c := range v.state.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (v transactionView) ListAntibiotics() []Antibiotic {
	out := make([]Antibiotic, 0, len(v.state.antibiotics))
	for _, a := range v.state.antibiotics {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (v transactionView) ListLegacyAntibiotics() []LegacyAntibiotic {
	out := make([]LegacyAntibiotic, 0, len(v.state.legacy))
	for _, l := range v.state.legacy {
		out = append(out, cloneLegacy(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (v transactionView) TypeInfo(name string) (TypeInfo, bool) {
	t, ok := v.state.types[name]
	if !ok {
		return TypeInfo{}, false
	}
	return cloneTypeInfo(t), true
}

func (v transactionView) RegistryValues(key string) []string {
	return append([]string(nil), v.state.registry[key]...)
}

func (v transactionView) InstalledVersion(profile string) string {
	return v.state.versions[profile]
}
