// Package memory provides the in-memory content repository used directly in
// tests and wrapped by the durable sqlite and postgres stores. It keeps the
// catalog index in step with every record mutation.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"abxcore/internal/catalog"
	"abxcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Folder aliases domain.Folder.
	Folder = domain.Folder
	// AntibioticClass aliases domain.AntibioticClass.
	AntibioticClass = domain.AntibioticClass
	// Antibiotic aliases domain.Antibiotic.
	Antibiotic = domain.Antibiotic
	// LegacyAntibiotic aliases domain.LegacyAntibiotic.
	LegacyAntibiotic = domain.LegacyAntibiotic
	// TypeInfo aliases domain.TypeInfo.
	TypeInfo = domain.TypeInfo
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// ErrNotFound is returned when a UID does not resolve to a record.
var ErrNotFound = errors.New("record not found")

type memoryState struct {
	folders     map[string]Folder
	classes     map[string]AntibioticClass
	antibiotics map[string]Antibiotic
	legacy      map[string]LegacyAntibiotic
	types       map[string]TypeInfo
	registry    map[string][]string
	versions    map[string]string
	catalog     *catalog.Index
}

func newMemoryState() memoryState {
	return memoryState{
		folders:     make(map[string]Folder),
		classes:     make(map[string]AntibioticClass),
		antibiotics: make(map[string]Antibiotic),
		legacy:      make(map[string]LegacyAntibiotic),
		types:       make(map[string]TypeInfo),
		registry:    make(map[string][]string),
		versions:    make(map[string]string),
		catalog:     catalog.New(),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		folders:     make(map[string]Folder, len(s.folders)),
		classes:     make(map[string]AntibioticClass, len(s.classes)),
		antibiotics: make(map[string]Antibiotic, len(s.antibiotics)),
		legacy:      make(map[string]LegacyAntibiotic, len(s.legacy)),
		types:       make(map[string]TypeInfo, len(s.types)),
		registry:    make(map[string][]string, len(s.registry)),
		versions:    make(map[string]string, len(s.versions)),
		catalog:     s.catalog.Clone(),
	}
	for k, v := range s.folders {
		cloned.folders[k] = v
	}
	for k, v := range s.classes {
		cloned.classes[k] = v
	}
	for k, v := range s.antibiotics {
		cloned.antibiotics[k] = v
	}
	for k, v := range s.legacy {
		cloned.legacy[k] = cloneLegacy(v)
	}
	for k, v := range s.types {
		cloned.types[k] = cloneTypeInfo(v)
	}
	for k, v := range s.registry {
		cloned.registry[k] = append([]string(nil), v...)
	}
	for k, v := range s.versions {
		cloned.versions[k] = v
	}
	return cloned
}

func cloneLegacy(l LegacyAntibiotic) LegacyAntibiotic {
	cp := l
	if l.Behaviors != nil {
		cp.Behaviors = make(map[string]any, len(l.Behaviors))
		for k, v := range l.Behaviors {
			cp.Behaviors[k] = v
		}
	}
	return cp
}

func cloneTypeInfo(t TypeInfo) TypeInfo {
	cp := t
	cp.Behaviors = append([]string(nil), t.Behaviors...)
	cp.AllowedContentTypes = append([]string(nil), t.AllowedContentTypes...)
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{
		Folders:           cp.folders,
		AntibioticClasses: cp.classes,
		Antibiotics:       cp.antibiotics,
		LegacyAntibiotics: cp.legacy,
		Types:             cp.types,
		Registry:          cp.registry,
		Versions:          cp.versions,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Folders {
		state.folders[k] = v
	}
	for k, v := range s.AntibioticClasses {
		state.classes[k] = v
	}
	for k, v := range s.Antibiotics {
		state.antibiotics[k] = v
	}
	for k, v := range s.LegacyAntibiotics {
		state.legacy[k] = cloneLegacy(v)
	}
	for k, v := range s.Types {
		state.types[k] = cloneTypeInfo(v)
	}
	for k, v := range s.Registry {
		state.registry[k] = append([]string(nil), v...)
	}
	for k, v := range s.Versions {
		state.versions[k] = v
	}
	state.rebuildCatalog()
	return state
}

// migrateSnapshot normalizes snapshots written by older releases: records are
// keyed by UID and every record carries its UID and portal type.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	fixBase := func(key string, b *domain.Base, portalType string) {
		if b.UID == "" {
			b.UID = key
		}
		if b.PortalType == "" {
			b.PortalType = portalType
		}
	}
	for k, v := range snapshot.AntibioticClasses {
		fixBase(k, &v.Base, domain.TypeAntibioticClass)
		snapshot.AntibioticClasses[k] = v
	}
	for k, v := range snapshot.Antibiotics {
		fixBase(k, &v.Base, domain.TypeAntibiotic)
		v.Abbreviation = strings.TrimSpace(v.Abbreviation)
		snapshot.Antibiotics[k] = v
	}
	for k, v := range snapshot.LegacyAntibiotics {
		fixBase(k, &v.Base, domain.TypeAntibiotic)
		snapshot.LegacyAntibiotics[k] = v
	}
	for k, v := range snapshot.Folders {
		fixBase(k, &v.Base, "")
		snapshot.Folders[k] = v
	}
	return snapshot
}

func (s *memoryState) record(uid string) (domain.Base, domain.EntityType, bool) {
	if f, ok := s.folders[uid]; ok {
		return f.Base, domain.EntityFolder, true
	}
	if c, ok := s.classes[uid]; ok {
		return c.Base, domain.EntityAntibioticClass, true
	}
	if a, ok := s.antibiotics[uid]; ok {
		return a.Base, domain.EntityAntibiotic, true
	}
	if l, ok := s.legacy[uid]; ok {
		return l.Base, domain.EntityLegacyAntibiotic, true
	}
	return domain.Base{}, "", false
}

func (s *memoryState) allRecords() []domain.Base {
	out := make([]domain.Base, 0, len(s.folders)+len(s.classes)+len(s.antibiotics)+len(s.legacy))
	for _, f := range s.folders {
		out = append(out, f.Base)
	}
	for _, c := range s.classes {
		out = append(out, c.Base)
	}
	for _, a := range s.antibiotics {
		out = append(out, a.Base)
	}
	for _, l := range s.legacy {
		out = append(out, l.Base)
	}
	return out
}

func (s *memoryState) children(parentUID string) []domain.Base {
	var out []domain.Base
	for _, b := range s.allRecords() {
		if b.ParentUID == parentUID && b.UID != parentUID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryState) path(b domain.Base) string {
	parts := []string{b.ID}
	seen := map[string]struct{}{b.UID: {}}
	parent := b.ParentUID
	for parent != "" {
		if _, loop := seen[parent]; loop {
			break
		}
		seen[parent] = struct{}{}
		p, _, ok := s.record(parent)
		if !ok {
			break
		}
		parts = append(parts, p.ID)
		parent = p.ParentUID
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func (s *memoryState) reindex(b domain.Base) {
	s.catalog.Reindex(domain.Brain{
		UID:        b.UID,
		ID:         b.ID,
		PortalType: b.PortalType,
		Title:      b.Title,
		IsActive:   b.Active,
		ParentUID:  b.ParentUID,
		Path:       s.path(b),
	})
}

func (s *memoryState) rebuildCatalog() {
	s.catalog = catalog.New()
	for _, b := range s.allRecords() {
		s.reindex(b)
	}
}

// Store provides an in-memory transactional content repository.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// NewUID returns a fresh record UID: 32 lowercase hex characters.
func NewUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot and rebuilds the catalog.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// ReplaceState implements domain.PersistentStore; nothing to flush in memory.
func (s *Store) ReplaceState(_ context.Context, snapshot Snapshot) error {
	s.ImportState(snapshot)
	return nil
}

// RulesEngine exposes the currently configured engine for integration points like plugins.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the clock used for record timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Either every mutation made by fn is committed or none is.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state.clone()
	tx := &transaction{
		transactionView: transactionView{state: &state},
		now:             s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}
