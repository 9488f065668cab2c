package abx

import (
	"context"
	"sort"
	"testing"

	"abxcore/internal/core"
	"abxcore/pkg/domain"

	"github.com/google/go-cmp/cmp"
)

func TestPluginRegistration(t *testing.T) {
	registry := core.NewPluginRegistry()
	if err := New().Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	var types []string
	for _, ti := range registry.Types() {
		types = append(types, ti.Name)
	}
	want := []string{domain.TypeAntibioticClassFolder, domain.TypeAntibioticFolder, domain.TypeAntibioticClass, domain.TypeAntibiotic}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("types mismatch (-want +got):\n%s", diff)
	}
	if rules := registry.Rules(); len(rules) != 1 || rules[0].Name() != RuleUniqueFields {
		t.Fatalf("unexpected rules %v", rules)
	}
	if names := registry.VocabularyNames(); len(names) != 1 || names[0] != VocabularyAntibioticClasses {
		t.Fatalf("unexpected vocabularies %v", names)
	}
	steps := registry.UpgradeSteps()
	if len(steps) != 1 || steps[0].Version != "1200" {
		t.Fatalf("unexpected upgrade steps %+v", steps)
	}
}

func TestInstallProvisionsFoldersAndClasses(t *testing.T) {
	ctx := context.Background()
	svc := installed(t, nil)

	view(t, svc, func(v core.TransactionView) {
		root, ok := v.SetupRoot()
		if !ok {
			t.Fatalf("expected setup root")
		}
		classes, ok := v.ChildByID(root.UID, ClassesFolderID)
		if !ok || classes.PortalType != domain.TypeAntibioticClassFolder || classes.Title != ClassesFolderTitle {
			t.Fatalf("unexpected classes folder %+v", classes)
		}
		abx, ok := v.ChildByID(root.UID, AntibioticsFolderID)
		if !ok || abx.PortalType != domain.TypeAntibioticFolder || abx.Title != AntibioticsFolderTitle {
			t.Fatalf("unexpected antibiotics folder %+v", abx)
		}
		ti, _ := v.TypeInfo(root.PortalType)
		if !ti.FilterContentTypes {
			t.Fatalf("expected setup content type filtering to be restored")
		}

		var got []string
		for _, c := range v.Children(classes.UID) {
			got = append(got, c.Title)
		}
		sort.Strings(got)
		want := append([]string(nil), ClassNames...)
		sort.Strings(want)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("classes mismatch (-want +got):\n%s", diff)
		}
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibiotic})); n != 0 {
			t.Fatalf("antibiotics are not seeded by default, found %d", n)
		}
		displayed := v.RegistryValues(DisplayedTypesKey)
		if diff := cmp.Diff([]string{domain.TypeAntibioticClassFolder, domain.TypeAntibioticFolder}, displayed); diff != "" {
			t.Fatalf("displayed types mismatch (-want +got):\n%s", diff)
		}
	})
	if version, _ := svc.InstalledVersion(ctx, Name); version != ProfileVersion {
		t.Fatalf("expected version %s, got %q", ProfileVersion, version)
	}
	if _, _, err := svc.CreateAntibiotic(ctx, core.Antibiotic{Base: core.Base{Title: "X"}, Abbreviation: "X", AntibioticClassUID: ""}); err != nil {
		t.Fatalf("antibiotic folder should accept antibiotics: %v", err)
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	svc := installed(t, nil, core.WithLogger(logger))

	for i := 0; i < 2; i++ {
		if _, err := svc.Execute(ctx, "setup", New().setup); err != nil {
			t.Fatalf("rerun setup: %v", err)
		}
	}
	view(t, svc, func(v core.TransactionView) {
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibioticClassFolder})); n != 1 {
			t.Fatalf("expected one class folder, got %d", n)
		}
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibioticFolder})); n != 1 {
			t.Fatalf("expected one antibiotic folder, got %d", n)
		}
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibioticClass, Title: "Penicillins"})); n != 1 {
			t.Fatalf("expected exactly one Penicillins class, got %d", n)
		}
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibioticClass})); n != len(ClassNames) {
			t.Fatalf("expected %d classes, got %d", len(ClassNames), n)
		}
		if got := v.RegistryValues(DisplayedTypesKey); len(got) != 2 {
			t.Fatalf("displayed types must not grow, got %v", got)
		}
	})
	if n := logger.count("w:antibiotic class already exists"); n != 2*len(ClassNames) {
		t.Fatalf("expected a skip notice per class and run, got %d", n)
	}
	if n := logger.count("w:setup folder already exists"); n != 4 {
		t.Fatalf("expected folder skip notices, got %d", n)
	}
}

func TestSetupRecreatesRenamedClass(t *testing.T) {
	ctx := context.Background()
	svc := installed(t, nil)
	brains, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibioticClass, Title: "Penicillins"})
	if _, _, err := svc.UpdateAntibioticClass(ctx, brains[0].UID, func(c *core.AntibioticClass) error {
		c.Title = "Beta-lactams"
		return nil
	}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := svc.Execute(ctx, "setup_classes", SetupAntibioticClasses); err != nil {
		t.Fatalf("setup classes: %v", err)
	}
	all, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibioticClass})
	if len(all) != len(ClassNames)+1 {
		t.Fatalf("expected renamed class to be recreated, got %d classes", len(all))
	}
}

func TestSetupRestoresFolderTitle(t *testing.T) {
	ctx := context.Background()
	svc := installed(t, nil)
	var folderUID string
	view(t, svc, func(v core.TransactionView) {
		root, _ := v.SetupRoot()
		f, _ := v.ChildByID(root.UID, ClassesFolderID)
		folderUID = f.UID
	})
	if _, err := svc.Execute(ctx, "blank_title", func(_ context.Context, tx core.Transaction, _ core.Logger) error {
		_, err := tx.UpdateFolder(folderUID, func(f *core.Folder) error {
			f.Title = "lost"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("change title: %v", err)
	}
	if _, err := svc.Execute(ctx, "setup_classes", SetupAntibioticClasses); err != nil {
		t.Fatalf("setup classes: %v", err)
	}
	brains, _ := svc.Search(ctx, core.Query{UID: folderUID})
	if len(brains) != 1 || brains[0].Title != ClassesFolderTitle {
		t.Fatalf("expected catalogued title to be restored, got %+v", brains)
	}
}

func TestSetupRequiresFolders(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	if _, err := svc.Execute(ctx, "classes", SetupAntibioticClasses); err == nil {
		t.Fatalf("expected error without setup root")
	}
	if _, err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := svc.Execute(ctx, "antibiotics", SetupAntibiotics); err == nil {
		t.Fatalf("expected error without antibiotics folder")
	}
}

func TestNavigationTypesAreAdditive(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	if _, err := svc.Execute(ctx, "seed_registry", func(_ context.Context, tx core.Transaction, _ core.Logger) error {
		tx.SetRegistryValues(DisplayedTypesKey, []string{"Image", domain.TypeAntibioticFolder})
		return nil
	}); err != nil {
		t.Fatalf("seed registry: %v", err)
	}
	if _, err := svc.InstallPlugin(ctx, New()); err != nil {
		t.Fatalf("install: %v", err)
	}
	view(t, svc, func(v core.TransactionView) {
		want := []string{"Image", domain.TypeAntibioticFolder, domain.TypeAntibioticClassFolder}
		if diff := cmp.Diff(want, v.RegistryValues(DisplayedTypesKey)); diff != "" {
			t.Fatalf("displayed types mismatch (-want +got):\n%s", diff)
		}
	})

	if err := svc.UninstallPlugin(ctx, Name); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	view(t, svc, func(v core.TransactionView) {
		if diff := cmp.Diff([]string{"Image"}, v.RegistryValues(DisplayedTypesKey)); diff != "" {
			t.Fatalf("uninstall must keep unrelated entries (-want +got):\n%s", diff)
		}
		if v.InstalledVersion(Name) != "" {
			t.Fatalf("expected version to be forgotten")
		}
		if n := len(v.Search(core.Query{PortalType: domain.TypeAntibioticClass})); n != len(ClassNames) {
			t.Fatalf("uninstall must keep data, got %d classes", n)
		}
	})
}

func TestSeedAntibiotics(t *testing.T) {
	ctx := context.Background()
	svc := installed(t, []Option{WithSeedAntibiotics(true)})

	view(t, svc, func(v core.TransactionView) {
		brains := v.Search(core.Query{PortalType: domain.TypeAntibiotic})
		if len(brains) != len(SeedAntibiotics) {
			t.Fatalf("expected %d antibiotics, got %d", len(SeedAntibiotics), len(brains))
		}
		records := antibiotics(v)
		for _, seed := range SeedAntibiotics {
			hits := v.Search(core.Query{PortalType: domain.TypeAntibiotic, Title: seed.Name})
			if len(hits) != 1 {
				t.Fatalf("expected one %s, got %d", seed.Name, len(hits))
			}
			a := records[hits[0].UID]
			class, ok := ResolveAntibioticClass(v, a)
			if a.Abbreviation != seed.Abbreviation || !ok || class.Title != seed.Class {
				t.Fatalf("unexpected %s: abbreviation=%q class=%q", seed.Name, a.Abbreviation, class.Title)
			}
		}
	})

	if _, err := svc.Execute(ctx, "seed_antibiotics", SetupAntibiotics); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	brains, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibiotic})
	if len(brains) != len(SeedAntibiotics) {
		t.Fatalf("reseeding must not duplicate, got %d", len(brains))
	}
}

func TestSeedAntibioticsSkipsMissingClassesAndTakenValues(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	svc := installed(t, nil, core.WithLogger(logger))

	macrolides, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibioticClass, Title: "Macrolides"})
	if _, err := svc.Delete(ctx, macrolides[0].UID); err != nil {
		t.Fatalf("delete class: %v", err)
	}
	if _, _, err := svc.CreateAntibiotic(ctx, core.Antibiotic{Base: core.Base{Title: "Penicillin G"}, Abbreviation: "P"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Execute(ctx, "seed_antibiotics", SetupAntibiotics); err != nil {
		t.Fatalf("seed: %v", err)
	}
	brains, _ := svc.Search(ctx, core.Query{PortalType: domain.TypeAntibiotic})
	// 4 macrolides skipped, Penicillin skipped for its abbreviation, plus the manual record.
	if want := len(SeedAntibiotics) - 4 - 1 + 1; len(brains) != want {
		t.Fatalf("expected %d antibiotics, got %d", want, len(brains))
	}
	if n := logger.count("e:antibiotic class missing"); n != 4 {
		t.Fatalf("expected 4 missing-class errors, got %d", n)
	}
	if n := logger.count("w:antibiotic abbreviation already in use"); n != 1 {
		t.Fatalf("expected abbreviation skip, got %d", n)
	}
}
