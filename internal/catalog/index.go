// Package catalog implements the search index over stored records. The index
// holds one brain per record and answers filtered, sorted queries without
// loading full records.
package catalog

import (
	"sort"
	"strings"

	"abxcore/pkg/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Index is a catalog of brains keyed by UID. It is not safe for concurrent
// mutation; callers serialize writes the way the stores serialize transactions.
type Index struct {
	brains map[string]domain.Brain
}

// New returns an empty index.
func New() *Index {
	return &Index{brains: make(map[string]domain.Brain)}
}

// Clone copies the index so a transaction can mutate it independently.
func (i *Index) Clone() *Index {
	cp := &Index{brains: make(map[string]domain.Brain, len(i.brains))}
	for k, v := range i.brains {
		cp.brains[k] = v
	}
	return cp
}

// Len returns the number of indexed records.
func (i *Index) Len() int { return len(i.brains) }

// Reindex stores or replaces the brain for b.UID, recomputing derived columns.
func (i *Index) Reindex(b domain.Brain) {
	if b.UID == "" {
		return
	}
	b.SortableTitle = SortableTitle(b.Title)
	i.brains[b.UID] = b
}

// Unindex drops the brain for uid.
func (i *Index) Unindex(uid string) {
	delete(i.brains, uid)
}

// Get returns the brain for uid.
func (i *Index) Get(uid string) (domain.Brain, bool) {
	b, ok := i.brains[uid]
	return b, ok
}

// Search returns brains matching q. Without SortOn the result is ordered by
// path so repeated queries are stable.
func (i *Index) Search(q domain.Query) []domain.Brain {
	var out []domain.Brain
	if q.UID != "" {
		if b, ok := i.brains[q.UID]; ok && matches(b, q) {
			out = append(out, b)
		}
		return out
	}
	for _, b := range i.brains {
		if matches(b, q) {
			out = append(out, b)
		}
	}
	sortBrains(out, q)
	return out
}

func matches(b domain.Brain, q domain.Query) bool {
	if q.PortalType != "" && b.PortalType != q.PortalType {
		return false
	}
	if q.Title != "" && b.Title != q.Title {
		return false
	}
	if q.ParentUID != "" && b.ParentUID != q.ParentUID {
		return false
	}
	if q.IsActive != nil && b.IsActive != *q.IsActive {
		return false
	}
	return true
}

func sortBrains(brains []domain.Brain, q domain.Query) {
	desc := q.SortOrder == domain.SortDescending
	if q.SortOn != domain.SortOnTitle {
		sort.Slice(brains, func(a, b int) bool {
			if brains[a].Path == brains[b].Path {
				return brains[a].UID < brains[b].UID
			}
			return brains[a].Path < brains[b].Path
		})
		return
	}
	// Collators keep per-instance buffers, so each search gets its own.
	col := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric)
	sort.SliceStable(brains, func(a, b int) bool {
		c := col.CompareString(brains[a].SortableTitle, brains[b].SortableTitle)
		if c == 0 {
			return brains[a].UID < brains[b].UID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// SortableTitle folds case and collapses whitespace. Digit runs are ordered
// numerically by the collator at search time.
func SortableTitle(title string) string {
	return cases.Fold().String(strings.Join(strings.Fields(title), " "))
}
