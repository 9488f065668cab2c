// Package abx provides the antibiotic reference data extension: the
// AntibioticClass and Antibiotic types with their setup folders, default
// data, uniqueness checks, class vocabulary and schema upgrades.
package abx

import (
	"context"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// Name is the plugin and profile identifier.
const Name = "senaite.abx"

// ProfileVersion is the version a fresh install is recorded at.
const ProfileVersion = "1200"

var (
	classFolderType = core.TypeInfo{
		Name:                domain.TypeAntibioticClassFolder,
		Title:               "Antibiotic Class Folder",
		Schema:              "senaite.abx.content.antibioticclassfolder.IAntibioticClassFolder",
		Behaviors:           []string{BehaviorBasic},
		Folderish:           true,
		FilterContentTypes:  true,
		AllowedContentTypes: []string{domain.TypeAntibioticClass},
		HiddenActions:       true,
	}
	antibioticFolderType = core.TypeInfo{
		Name:                domain.TypeAntibioticFolder,
		Title:               "Antibiotic Folder",
		Schema:              "senaite.abx.content.antibioticfolder.IAntibioticFolder",
		Behaviors:           []string{BehaviorBasic},
		Folderish:           true,
		FilterContentTypes:  true,
		AllowedContentTypes: []string{domain.TypeAntibiotic},
		HiddenActions:       true,
	}
	antibioticClassType = core.TypeInfo{
		Name:      domain.TypeAntibioticClass,
		Title:     "Antibiotic Class",
		Schema:    "senaite.abx.content.antibioticclass.IAntibioticClassSchema",
		Behaviors: []string{BehaviorBasic},
	}
	antibioticType = core.TypeInfo{
		Name:               domain.TypeAntibiotic,
		Title:              "Antibiotic",
		Schema:             AntibioticSchema,
		Folderish:          true,
		FilterContentTypes: true,
	}
)

// Plugin is the antibiotic extension.
type Plugin struct {
	seedAntibiotics bool
}

// Option configures the plugin.
type Option func(*Plugin)

// WithSeedAntibiotics makes install create the default antibiotics as well
// as the default classes.
func WithSeedAntibiotics(enabled bool) Option {
	return func(p *Plugin) { p.seedAntibiotics = enabled }
}

// New constructs the plugin.
func New(opts ...Option) Plugin {
	var p Plugin
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return Name }

// Version returns the profile version of a fresh install.
func (Plugin) Version() string { return ProfileVersion }

// Register declares types, rules, the class vocabulary, install handlers and
// upgrade steps.
func (p Plugin) Register(registry *core.PluginRegistry) error {
	for _, ti := range []core.TypeInfo{classFolderType, antibioticFolderType, antibioticClassType, antibioticType} {
		if err := registry.RegisterType(ti); err != nil {
			return err
		}
	}
	registry.RegisterRule(uniqueFieldsRule{})
	if err := registry.RegisterVocabulary(VocabularyAntibioticClasses, AntibioticClassesVocabulary); err != nil {
		return err
	}
	registry.RegisterHandler(core.PhasePreInstall, logPhase("pre-install"))
	registry.RegisterHandler(core.PhaseSetup, p.setup)
	registry.RegisterHandler(core.PhasePostInstall, logPhase("post-install"))
	registry.RegisterUninstallHandler(removeNavigationTypes)
	return registry.RegisterUpgradeStep(core.UpgradeStep{
		Version: "1200",
		Title:   "Antibiotics become folderish",
		Run:     upgradeTo1200,
	})
}

func logPhase(phase string) core.Handler {
	return func(_ context.Context, _ core.Transaction, log core.Logger) error {
		log.Info("install handler", "plugin", Name, "phase", phase)
		return nil
	}
}

func (p Plugin) setup(ctx context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("setup handler begin", "plugin", Name)
	steps := []core.Handler{AddSetupFolders, SetupNavigationTypes, SetupAntibioticClasses}
	if p.seedAntibiotics {
		steps = append(steps, SetupAntibiotics)
	}
	for _, step := range steps {
		if err := step(ctx, tx, log); err != nil {
			return err
		}
	}
	log.Info("setup handler done", "plugin", Name)
	return nil
}
