package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"abxcore/pkg/domain"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) add(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, level+":"+msg)
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.add("d", msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.add("i", msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.add("w", msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.add("e", msg) }

func (c *captureLogger) has(entry string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e == entry {
			return true
		}
	}
	return false
}

// forbiddenTitleRule blocks antibiotics titled "Forbidden" and warns on "Suspicious".
type forbiddenTitleRule struct{}

func (forbiddenTitleRule) Name() string { return "fixture_forbidden_title" }

func (forbiddenTitleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, ch := range changes {
		a, ok := ch.After.(domain.Antibiotic)
		if !ok {
			continue
		}
		switch a.Title {
		case "Forbidden":
			res.Violations = append(res.Violations, domain.Violation{Rule: "fixture_forbidden_title", Severity: domain.SeverityBlock, Message: "forbidden title", Field: "title"})
		case "Suspicious":
			res.Violations = append(res.Violations, domain.Violation{Rule: "fixture_forbidden_title", Severity: domain.SeverityWarn, Message: "suspicious title"})
		}
	}
	return res, nil
}

// fixturePlugin provides the antibiotic folder types and records every
// handler invocation in calls.
type fixturePlugin struct {
	name      string
	version   string
	steps     []UpgradeStep
	failSetup error
	calls     *[]string
}

func (p fixturePlugin) Name() string    { return p.name }
func (p fixturePlugin) Version() string { return p.version }

func (p fixturePlugin) record(label string) Handler {
	return func(context.Context, Transaction, Logger) error {
		if p.calls != nil {
			*p.calls = append(*p.calls, label)
		}
		return nil
	}
}

func (p fixturePlugin) Register(r *PluginRegistry) error {
	types := []TypeInfo{
		{Name: domain.TypeAntibioticClassFolder, Folderish: true, FilterContentTypes: true, AllowedContentTypes: []string{domain.TypeAntibioticClass}},
		{Name: domain.TypeAntibioticFolder, Folderish: true, FilterContentTypes: true, AllowedContentTypes: []string{domain.TypeAntibiotic}},
		{Name: domain.TypeAntibioticClass, Title: "Antibiotic Class"},
		{Name: domain.TypeAntibiotic, Title: "Antibiotic", Folderish: true},
	}
	for _, ti := range types {
		if err := r.RegisterType(ti); err != nil {
			return err
		}
	}
	r.RegisterRule(forbiddenTitleRule{})
	if err := r.RegisterVocabulary("fixture.classes", func(v TransactionView) []Term {
		var out []Term
		for _, c := range v.ListAntibioticClasses() {
			out = append(out, Term{Value: c.UID, Token: c.UID, Title: c.Title})
		}
		return out
	}); err != nil {
		return err
	}
	r.RegisterHandler(PhasePostInstall, p.record("post"))
	r.RegisterHandler(PhaseSetup, func(ctx context.Context, tx Transaction, log Logger) error {
		if p.calls != nil {
			*p.calls = append(*p.calls, "setup")
		}
		if p.failSetup != nil {
			return p.failSetup
		}
		return addFixtureFolders(tx)
	})
	r.RegisterHandler(PhasePreInstall, p.record("pre"))
	r.RegisterUninstallHandler(p.record("uninstall"))
	for _, step := range p.steps {
		if err := r.RegisterUpgradeStep(step); err != nil {
			return err
		}
	}
	return nil
}

func addFixtureFolders(tx Transaction) error {
	root, ok := tx.SetupRoot()
	if !ok {
		return fmt.Errorf("no setup root")
	}
	if _, err := tx.UpdateType(domain.TypeSetup, func(ti *TypeInfo) error {
		ti.AllowedContentTypes = []string{domain.TypeAntibioticClassFolder, domain.TypeAntibioticFolder}
		return nil
	}); err != nil {
		return err
	}
	for _, f := range []Folder{
		{Base: Base{ID: "antibiotic_classes", Title: "Antibiotic classes", PortalType: domain.TypeAntibioticClassFolder, ParentUID: root.UID}},
		{Base: Base{ID: "antibiotics", Title: "Antibiotics", PortalType: domain.TypeAntibioticFolder, ParentUID: root.UID}},
	} {
		if _, exists := tx.ChildByID(root.UID, f.ID); exists {
			continue
		}
		if _, err := tx.CreateFolder(f); err != nil {
			return err
		}
	}
	return nil
}

func newInstalledService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := NewInMemoryService(NewRulesEngine(), opts...)
	if _, err := svc.InstallPlugin(context.Background(), fixturePlugin{name: "fixture", version: "1000"}); err != nil {
		t.Fatalf("install fixture plugin: %v", err)
	}
	return svc
}

func joined(calls []string) string { return strings.Join(calls, ",") }
