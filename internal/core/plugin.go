package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Plugin describes an extension that contributes types, rules, vocabularies
// and install, uninstall and upgrade handlers.
type Plugin interface {
	Name() string
	// Version is the profile version a fresh install ends up at.
	Version() string
	Register(registry *PluginRegistry) error
}

// Handler runs inside a service transaction on behalf of a plugin.
type Handler func(ctx context.Context, tx Transaction, log Logger) error

// Vocabulary produces the terms of a named option list.
type Vocabulary func(view TransactionView) []Term

// UpgradeStep migrates stored data to a newer profile version.
type UpgradeStep struct {
	Version string
	Title   string
	Run     Handler
}

// Install phases run in this order inside one transaction.
type Phase int

const (
	PhasePreInstall Phase = iota
	PhaseSetup
	PhasePostInstall
)

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules        []Rule
	types        []TypeInfo
	vocabularies map[string]Vocabulary
	handlers     map[Phase][]Handler
	uninstall    []Handler
	steps        []UpgradeStep
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		vocabularies: make(map[string]Vocabulary),
		handlers:     make(map[Phase][]Handler),
	}
}

// RegisterRule adds an in-transaction rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterType declares a portal type the plugin provides.
func (r *PluginRegistry) RegisterType(ti TypeInfo) error {
	if ti.Name == "" {
		return fmt.Errorf("type name required")
	}
	for _, existing := range r.types {
		if existing.Name == ti.Name {
			return fmt.Errorf("type %s already registered", ti.Name)
		}
	}
	r.types = append(r.types, ti)
	return nil
}

// RegisterVocabulary publishes a named vocabulary.
func (r *PluginRegistry) RegisterVocabulary(name string, vocab Vocabulary) error {
	if name == "" || vocab == nil {
		return fmt.Errorf("vocabulary name and factory required")
	}
	if _, exists := r.vocabularies[name]; exists {
		return fmt.Errorf("vocabulary %s already registered", name)
	}
	r.vocabularies[name] = vocab
	return nil
}

// RegisterHandler adds an install handler for phase.
func (r *PluginRegistry) RegisterHandler(phase Phase, h Handler) {
	if h == nil {
		return
	}
	r.handlers[phase] = append(r.handlers[phase], h)
}

// RegisterUninstallHandler adds a handler run by UninstallPlugin.
func (r *PluginRegistry) RegisterUninstallHandler(h Handler) {
	if h == nil {
		return
	}
	r.uninstall = append(r.uninstall, h)
}

// RegisterUpgradeStep adds a migration to version step.Version.
func (r *PluginRegistry) RegisterUpgradeStep(step UpgradeStep) error {
	if step.Version == "" || step.Run == nil {
		return fmt.Errorf("upgrade step needs a version and a handler")
	}
	for _, existing := range r.steps {
		if existing.Version == step.Version {
			return fmt.Errorf("upgrade step %s already registered", step.Version)
		}
	}
	r.steps = append(r.steps, step)
	return nil
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Types returns the declared type infos in registration order.
func (r *PluginRegistry) Types() []TypeInfo {
	return append([]TypeInfo(nil), r.types...)
}

// VocabularyNames returns the registered vocabulary names, sorted.
func (r *PluginRegistry) VocabularyNames() []string {
	out := make([]string, 0, len(r.vocabularies))
	for name := range r.vocabularies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// UpgradeSteps returns the registered steps ordered by version.
func (r *PluginRegistry) UpgradeSteps() []UpgradeStep {
	out := append([]UpgradeStep(nil), r.steps...)
	sort.SliceStable(out, func(i, j int) bool { return CompareVersions(out[i].Version, out[j].Version) < 0 })
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Types        []string `json:"types" yaml:"types"`
	Rules        []string `json:"rules" yaml:"rules"`
	Vocabularies []string `json:"vocabularies" yaml:"vocabularies"`
}

type installedPlugin struct {
	plugin   Plugin
	meta     PluginMetadata
	registry *PluginRegistry
}

// CompareVersions orders profile versions numerically when both parse as
// integers and lexically otherwise. The empty version sorts first.
func CompareVersions(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}
