package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"abxcore/internal/infra/persistence/memory"
	"abxcore/pkg/domain"
)

// Service exposes transactional record operations and plugin lifecycle
// management on top of a persistent store.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder

	mu      sync.RWMutex
	plugins map[string]*installedPlugin
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		plugins: make(map[string]*installedPlugin),
	}
	for _, opt := range opts {
		opt(s)
	}
	if clocked, ok := store.(interface{ SetNowFunc(func() time.Time) }); ok {
		clocked.SetNowFunc(func() time.Time { return s.clock.Now().UTC() })
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Logger returns the logger operations report to.
func (s *Service) Logger() Logger { return s.logger }

// ErrNotFound is returned when a UID does not resolve to a record of the
// expected kind.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Unwrap lets errors.Is match the storage level sentinel.
func (e ErrNotFound) Unwrap() error { return memory.ErrNotFound }

var operationMeta = map[string]struct {
	entity EntityType
	action Action
}{
	"create_antibiotic_class": {domain.EntityAntibioticClass, ActionCreate},
	"update_antibiotic_class": {domain.EntityAntibioticClass, ActionUpdate},
	"create_antibiotic":       {domain.EntityAntibiotic, ActionCreate},
	"update_antibiotic":       {domain.EntityAntibiotic, ActionUpdate},
	"set_active":              {"", ActionUpdate},
	"delete_record":           {"", ActionDelete},
}

// run executes fn in a store transaction and reports the outcome to the
// tracer, metrics recorder, logger and audit recorder. fn returns the UID of
// the record it touched, if any.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	var uid string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		uid, err = fn(tx)
		return err
	})
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	span.End(err)
	s.recordAudit(ctx, op, uid, duration, err)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
		return res, err
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "message", v.Message)
		}
	}
	s.logger.Debug("operation completed", "operation", op, "uid", uid, "duration", duration)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, uid string, duration time.Duration, err error) {
	entry := AuditEntry{
		Operation: op,
		EntityID:  uid,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now().UTC(),
	}
	if meta, ok := operationMeta[op]; ok {
		entry.Entity = meta.entity
		entry.Action = meta.action
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// Execute runs a plugin handler as a named service operation.
func (s *Service) Execute(ctx context.Context, op string, h Handler) (Result, error) {
	if h == nil {
		return Result{}, fmt.Errorf("%s: handler required", op)
	}
	return s.run(ctx, op, func(tx Transaction) (string, error) {
		return "", h(ctx, tx, s.logger)
	})
}

// View runs fn against a consistent read-only snapshot.
func (s *Service) View(ctx context.Context, fn func(TransactionView) error) error {
	return s.store.View(ctx, fn)
}

// hostTypes are the portal types the host provides independently of plugins.
var hostTypes = []TypeInfo{
	{Name: domain.TypeSetup, Title: "Setup", Folderish: true, FilterContentTypes: true},
}

func bootstrap(tx Transaction) error {
	for _, ti := range hostTypes {
		if _, ok := tx.TypeInfo(ti.Name); ok {
			continue
		}
		if err := tx.RegisterType(ti); err != nil {
			return err
		}
	}
	if _, ok := tx.SetupRoot(); ok {
		return nil
	}
	_, err := tx.CreateFolder(Folder{Base: Base{ID: domain.SetupRootID, Title: "Setup", PortalType: domain.TypeSetup}})
	return err
}

// Bootstrap ensures the setup root and the host type registry exist.
func (s *Service) Bootstrap(ctx context.Context) (Result, error) {
	return s.run(ctx, "bootstrap", func(tx Transaction) (string, error) {
		if err := bootstrap(tx); err != nil {
			return "", err
		}
		root, _ := tx.SetupRoot()
		return root.UID, nil
	})
}

// containerFor finds the setup folder that accepts portalType.
func containerFor(view TransactionView, portalType string) (string, error) {
	root, ok := view.SetupRoot()
	if !ok {
		return "", fmt.Errorf("setup root missing; bootstrap the repository first")
	}
	for _, child := range view.Children(root.UID) {
		ti, ok := view.TypeInfo(child.PortalType)
		if ok && ti.FilterContentTypes && ti.Allows(portalType) {
			return child.UID, nil
		}
	}
	return "", fmt.Errorf("no folder accepts %s records; install the plugin that provides them", portalType)
}

// InstallPlugin registers a plugin and runs its install handlers. Types,
// setup handlers and the version record are applied in one transaction.
func (s *Service) InstallPlugin(ctx context.Context, plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := plugin.Name()
	if _, ok := s.plugins[name]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", name)
	}

	registry, meta, err := s.attach(plugin)
	if err != nil {
		return PluginMetadata{}, err
	}
	engine := s.store.RulesEngine()

	_, err = s.run(ctx, "install_plugin", func(tx Transaction) (string, error) {
		if err := bootstrap(tx); err != nil {
			return "", err
		}
		for _, ti := range registry.Types() {
			if _, ok := tx.TypeInfo(ti.Name); ok {
				continue
			}
			if err := tx.RegisterType(ti); err != nil {
				return "", err
			}
		}
		for _, phase := range []Phase{PhasePreInstall, PhaseSetup, PhasePostInstall} {
			for _, h := range registry.handlers[phase] {
				if err := h(ctx, tx, s.logger); err != nil {
					return "", err
				}
			}
		}
		if tx.InstalledVersion(name) == "" {
			tx.SetInstalledVersion(name, plugin.Version())
		}
		return "", nil
	})
	if err != nil {
		engine.Unregister(meta.Rules...)
		return PluginMetadata{}, fmt.Errorf("install plugin %s: %w", name, err)
	}
	s.plugins[name] = &installedPlugin{plugin: plugin, meta: meta, registry: registry}
	s.logger.Info("plugin installed", "plugin", name, "version", meta.Version)
	return meta, nil
}

// attach collects a plugin's registrations and enables its rules.
func (s *Service) attach(plugin Plugin) (*PluginRegistry, PluginMetadata, error) {
	name := plugin.Name()
	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return nil, PluginMetadata{}, fmt.Errorf("register plugin %s: %w", name, err)
	}
	meta := PluginMetadata{Name: name, Version: plugin.Version(), Vocabularies: registry.VocabularyNames()}
	for _, ti := range registry.Types() {
		meta.Types = append(meta.Types, ti.Name)
	}
	engine := s.store.RulesEngine()
	for _, rule := range registry.Rules() {
		engine.Register(rule)
		meta.Rules = append(meta.Rules, rule.Name())
	}
	return registry, meta, nil
}

// LoadPlugin activates a plugin that was installed by an earlier process:
// rules, vocabularies and upgrade steps become available but no install
// handler runs. It fails when the repository has no recorded profile
// version for the plugin.
func (s *Service) LoadPlugin(ctx context.Context, plugin Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name := plugin.Name()
	if _, ok := s.plugins[name]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", name)
	}
	var version string
	if err := s.store.View(ctx, func(v TransactionView) error {
		version = v.InstalledVersion(name)
		return nil
	}); err != nil {
		return PluginMetadata{}, err
	}
	if version == "" {
		return PluginMetadata{}, fmt.Errorf("plugin %s: %w", name, ErrPluginNotInstalled)
	}
	registry, meta, err := s.attach(plugin)
	if err != nil {
		return PluginMetadata{}, err
	}
	s.plugins[name] = &installedPlugin{plugin: plugin, meta: meta, registry: registry}
	s.logger.Debug("plugin loaded", "plugin", name, "version", version)
	return meta, nil
}

// UninstallPlugin runs the plugin's uninstall handlers and forgets its
// profile version. Stored records are left in place.
func (s *Service) UninstallPlugin(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[name]
	if !ok {
		return fmt.Errorf("plugin %s not installed", name)
	}
	_, err := s.run(ctx, "uninstall_plugin", func(tx Transaction) (string, error) {
		for _, h := range p.registry.uninstall {
			if err := h(ctx, tx, s.logger); err != nil {
				return "", err
			}
		}
		tx.ClearInstalledVersion(name)
		return "", nil
	})
	if err != nil {
		return fmt.Errorf("uninstall plugin %s: %w", name, err)
	}
	s.store.RulesEngine().Unregister(p.meta.Rules...)
	delete(s.plugins, name)
	s.logger.Info("plugin uninstalled", "plugin", name)
	return nil
}

// Upgrade runs, in version order, every registered step newer than the
// installed profile version. All steps share one transaction: either every
// step and the new version record commit, or nothing does. It returns the
// versions applied.
func (s *Service) Upgrade(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	p, ok := s.plugins[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin %s not installed", name)
	}
	var applied []string
	var from string
	_, err := s.run(ctx, "upgrade_plugin", func(tx Transaction) (string, error) {
		applied = nil
		from = tx.InstalledVersion(name)
		current := from
		for _, step := range p.registry.UpgradeSteps() {
			if CompareVersions(step.Version, current) <= 0 {
				continue
			}
			s.logger.Info("running upgrade step", "plugin", name, "from", current, "to", step.Version, "title", step.Title)
			if err := step.Run(ctx, tx, s.logger); err != nil {
				return "", fmt.Errorf("upgrade step %s: %w", step.Version, err)
			}
			applied = append(applied, step.Version)
			current = step.Version
		}
		if len(applied) > 0 {
			tx.SetInstalledVersion(name, current)
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		s.logger.Info("no pending upgrade steps", "plugin", name, "version", from)
		return nil, nil
	}
	s.logger.Info("plugin upgraded", "plugin", name, "from", from, "to", applied[len(applied)-1])
	return applied, nil
}

// InstalledVersion reports the recorded profile version of a plugin.
func (s *Service) InstalledVersion(ctx context.Context, name string) (string, error) {
	var version string
	err := s.store.View(ctx, func(v TransactionView) error {
		version = v.InstalledVersion(name)
		return nil
	})
	return version, err
}

// RegisteredPlugins returns metadata describing installed plugins, sorted by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, p := range s.plugins {
		out = append(out, p.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateAntibioticClass persists a new antibiotic class. An empty ParentUID
// selects the setup folder that accepts classes.
func (s *Service) CreateAntibioticClass(ctx context.Context, class AntibioticClass) (AntibioticClass, Result, error) {
	var created AntibioticClass
	res, err := s.run(ctx, "create_antibiotic_class", func(tx Transaction) (string, error) {
		if class.ParentUID == "" {
			parent, err := containerFor(tx, domain.TypeAntibioticClass)
			if err != nil {
				return "", err
			}
			class.ParentUID = parent
		}
		var err error
		created, err = tx.CreateAntibioticClass(class)
		return created.UID, err
	})
	return created, res, err
}

// UpdateAntibioticClass mutates an antibiotic class.
func (s *Service) UpdateAntibioticClass(ctx context.Context, uid string, mutator func(*AntibioticClass) error) (AntibioticClass, Result, error) {
	var updated AntibioticClass
	res, err := s.run(ctx, "update_antibiotic_class", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateAntibioticClass(uid, mutator)
		return uid, err
	})
	return updated, res, err
}

// CreateAntibiotic persists a new antibiotic. An empty ParentUID selects the
// setup folder that accepts antibiotics.
func (s *Service) CreateAntibiotic(ctx context.Context, antibiotic Antibiotic) (Antibiotic, Result, error) {
	var created Antibiotic
	res, err := s.run(ctx, "create_antibiotic", func(tx Transaction) (string, error) {
		if antibiotic.ParentUID == "" {
			parent, err := containerFor(tx, domain.TypeAntibiotic)
			if err != nil {
				return "", err
			}
			antibiotic.ParentUID = parent
		}
		var err error
		created, err = tx.CreateAntibiotic(antibiotic)
		return created.UID, err
	})
	return created, res, err
}

// UpdateAntibiotic mutates an antibiotic.
func (s *Service) UpdateAntibiotic(ctx context.Context, uid string, mutator func(*Antibiotic) error) (Antibiotic, Result, error) {
	var updated Antibiotic
	res, err := s.run(ctx, "update_antibiotic", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateAntibiotic(uid, mutator)
		return uid, err
	})
	return updated, res, err
}

// SetActive performs the activate or deactivate workflow transition.
func (s *Service) SetActive(ctx context.Context, uid string, active bool) (Base, Result, error) {
	var updated Base
	res, err := s.run(ctx, "set_active", func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.SetActive(uid, active)
		return uid, err
	})
	return updated, res, err
}

// Delete removes a record. Containers must be empty and references held by
// other records are not cleaned up.
func (s *Service) Delete(ctx context.Context, uid string) (Result, error) {
	return s.run(ctx, "delete_record", func(tx Transaction) (string, error) {
		return uid, tx.Delete(uid)
	})
}

// GetAntibiotic loads an antibiotic by UID.
func (s *Service) GetAntibiotic(ctx context.Context, uid string) (Antibiotic, error) {
	var out Antibiotic
	err := s.store.View(ctx, func(v TransactionView) error {
		a, ok := v.FindAntibiotic(uid)
		if !ok {
			return ErrNotFound{Entity: domain.EntityAntibiotic, ID: uid}
		}
		out = a
		return nil
	})
	return out, err
}

// GetAntibioticClass loads an antibiotic class by UID.
func (s *Service) GetAntibioticClass(ctx context.Context, uid string) (AntibioticClass, error) {
	var out AntibioticClass
	err := s.store.View(ctx, func(v TransactionView) error {
		c, ok := v.FindAntibioticClass(uid)
		if !ok {
			return ErrNotFound{Entity: domain.EntityAntibioticClass, ID: uid}
		}
		out = c
		return nil
	})
	return out, err
}

// Search queries the catalog.
func (s *Service) Search(ctx context.Context, q Query) ([]Brain, error) {
	var out []Brain
	err := s.store.View(ctx, func(v TransactionView) error {
		out = v.Search(q)
		return nil
	})
	return out, err
}

// ErrUnknownVocabulary is returned for vocabulary names no plugin registered.
var ErrUnknownVocabulary = errors.New("unknown vocabulary")

// ErrPluginNotInstalled is returned by LoadPlugin for a repository without
// the plugin's profile.
var ErrPluginNotInstalled = errors.New("plugin not installed")

// Vocabulary resolves a registered vocabulary by name. An empty vocabulary
// is a valid result.
func (s *Service) Vocabulary(ctx context.Context, name string) ([]Term, error) {
	s.mu.RLock()
	var vocab Vocabulary
	for _, p := range s.plugins {
		if v, ok := p.registry.vocabularies[name]; ok {
			vocab = v
			break
		}
	}
	s.mu.RUnlock()
	if vocab == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVocabulary, name)
	}
	var terms []Term
	err := s.store.View(ctx, func(v TransactionView) error {
		terms = vocab(v)
		return nil
	})
	if terms == nil {
		terms = []Term{}
	}
	return terms, err
}
