package domain

import "context"

// TransactionView provides read-only access to a consistent state snapshot.
type TransactionView interface {
	Search(q Query) []Brain
	SetupRoot() (Folder, bool)
	FindFolder(uid string) (Folder, bool)
	FindAntibioticClass(uid string) (AntibioticClass, bool)
	FindAntibiotic(uid string) (Antibiotic, bool)
	FindRecord(uid string) (Base, bool)
	ChildByID(parentUID, id string) (Base, bool)
	Children(parentUID string) []Base
	ListAntibioticClasses() []AntibioticClass
	ListAntibiotics() []Antibiotic
	ListLegacyAntibiotics() []LegacyAntibiotic
	TypeInfo(name string) (TypeInfo, bool)
	RegistryValues(key string) []string
	InstalledVersion(profile string) string
}

// Transaction exposes the record operations a persistence implementation must
// support within an atomic scope. Every create, update and delete reindexes
// the affected record in the catalog.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView
	CreateFolder(Folder) (Folder, error)
	UpdateFolder(uid string, mutator func(*Folder) error) (Folder, error)
	CreateAntibioticClass(AntibioticClass) (AntibioticClass, error)
	UpdateAntibioticClass(uid string, mutator func(*AntibioticClass) error) (AntibioticClass, error)
	CreateAntibiotic(Antibiotic) (Antibiotic, error)
	UpdateAntibiotic(uid string, mutator func(*Antibiotic) error) (Antibiotic, error)
	MigrateLegacyAntibiotic(Antibiotic) (Antibiotic, error)
	SetActive(uid string, active bool) (Base, error)
	Delete(uid string) error
	Reindex(uid string) error
	RegisterType(TypeInfo) error
	UpdateType(name string, mutator func(*TypeInfo) error) (TypeInfo, error)
	SetRegistryValues(key string, values []string)
	SetInstalledVersion(profile, version string)
	ClearInstalledVersion(profile string)
}

// Snapshot captures the complete persisted state.
type Snapshot struct {
	Folders           map[string]Folder           `json:"folders"`
	AntibioticClasses map[string]AntibioticClass  `json:"antibiotic_classes"`
	Antibiotics       map[string]Antibiotic       `json:"antibiotics"`
	LegacyAntibiotics map[string]LegacyAntibiotic `json:"legacy_antibiotics"`
	Types             map[string]TypeInfo         `json:"types"`
	Registry          map[string][]string         `json:"registry"`
	Versions          map[string]string           `json:"versions"`
}

// PersistentStore is the abstraction over durable backends used by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ExportState() Snapshot
	ReplaceState(ctx context.Context, snapshot Snapshot) error
	RulesEngine() *RulesEngine
}
