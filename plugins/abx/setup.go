package abx

import (
	"context"
	"fmt"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// Setup folder ids and titles.
const (
	ClassesFolderID        = "antibiotic_classes"
	ClassesFolderTitle     = "Antibiotic classes"
	AntibioticsFolderID    = "antibiotics"
	AntibioticsFolderTitle = "Antibiotics"
)

// DisplayedTypesKey is the registry key listing types shown in navigation.
const DisplayedTypesKey = "displayed_types"

type setupFolder struct {
	id, title, portalType string
}

var setupFolders = []setupFolder{
	{ClassesFolderID, ClassesFolderTitle, domain.TypeAntibioticClassFolder},
	{AntibioticsFolderID, AntibioticsFolderTitle, domain.TypeAntibioticFolder},
}

// AddSetupFolders creates the class and antibiotic folders under the setup
// root when missing. Content type filtering of the setup root is switched off
// while the folders are added and restored afterwards.
func AddSetupFolders(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("adding setup folders")
	root, ok := tx.SetupRoot()
	if !ok {
		return fmt.Errorf("setup root missing")
	}

	filtered := false
	if ti, ok := tx.TypeInfo(root.PortalType); ok {
		filtered = ti.FilterContentTypes
		if err := setFilterContentTypes(tx, root.PortalType, false); err != nil {
			return err
		}
	}

	for _, f := range setupFolders {
		if _, exists := tx.ChildByID(root.UID, f.id); exists {
			log.Warn("setup folder already exists, skipping", "id", f.id)
			continue
		}
		log.Info("adding setup folder", "id", f.id)
		if _, err := tx.CreateFolder(core.Folder{Base: core.Base{
			ID:         f.id,
			Title:      f.title,
			PortalType: f.portalType,
			ParentUID:  root.UID,
		}}); err != nil {
			return fmt.Errorf("add folder %s: %w", f.id, err)
		}
	}

	if filtered {
		if err := setFilterContentTypes(tx, root.PortalType, true); err != nil {
			return err
		}
	}
	return nil
}

func setFilterContentTypes(tx core.Transaction, portalType string, on bool) error {
	_, err := tx.UpdateType(portalType, func(ti *core.TypeInfo) error {
		ti.FilterContentTypes = on
		return nil
	})
	return err
}

// SetupNavigationTypes adds both folder types to the displayed types,
// keeping whatever is already listed.
func SetupNavigationTypes(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("setting up navigation types")
	current := tx.Snapshot().RegistryValues(DisplayedTypesKey)
	present := make(map[string]bool, len(current))
	for _, v := range current {
		present[v] = true
	}
	for _, f := range setupFolders {
		if !present[f.portalType] {
			current = append(current, f.portalType)
			present[f.portalType] = true
		}
	}
	tx.SetRegistryValues(DisplayedTypesKey, current)
	return nil
}

// removeNavigationTypes drops the folder types from the displayed types and
// leaves every other entry in place.
func removeNavigationTypes(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("removing navigation types")
	drop := make(map[string]bool, len(setupFolders))
	for _, f := range setupFolders {
		drop[f.portalType] = true
	}
	var kept []string
	for _, v := range tx.Snapshot().RegistryValues(DisplayedTypesKey) {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	tx.SetRegistryValues(DisplayedTypesKey, kept)
	return nil
}

func setupFolderByID(tx core.Transaction, id string) (core.Folder, error) {
	root, ok := tx.SetupRoot()
	if !ok {
		return core.Folder{}, fmt.Errorf("setup root missing")
	}
	child, ok := tx.ChildByID(root.UID, id)
	if !ok {
		return core.Folder{}, fmt.Errorf("setup folder %s missing; run AddSetupFolders first", id)
	}
	folder, ok := tx.FindFolder(child.UID)
	if !ok {
		return core.Folder{}, fmt.Errorf("setup entry %s is not a folder", id)
	}
	return folder, nil
}

func childTitles(tx core.Transaction, parentUID string) map[string]bool {
	titles := make(map[string]bool)
	for _, c := range tx.Children(parentUID) {
		titles[c.Title] = true
	}
	return titles
}

// restoreFolderTitle puts a setup folder's title back after bulk inserts.
func restoreFolderTitle(tx core.Transaction, folder core.Folder, title string) error {
	current, ok := tx.FindFolder(folder.UID)
	if !ok || current.Title == title {
		return nil
	}
	_, err := tx.UpdateFolder(folder.UID, func(f *core.Folder) error {
		f.Title = title
		return nil
	})
	return err
}

// SetupAntibioticClasses creates every class in ClassNames that has no
// same-titled child in the classes folder yet.
func SetupAntibioticClasses(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("setting up default antibiotic classes")
	folder, err := setupFolderByID(tx, ClassesFolderID)
	if err != nil {
		return err
	}
	existing := childTitles(tx, folder.UID)
	for _, name := range ClassNames {
		if existing[name] {
			log.Warn("antibiotic class already exists, skipping", "title", name)
			continue
		}
		log.Info("adding antibiotic class", "title", name)
		if _, err := tx.CreateAntibioticClass(core.AntibioticClass{Base: core.Base{Title: name, ParentUID: folder.UID}}); err != nil {
			return fmt.Errorf("add antibiotic class %s: %w", name, err)
		}
		existing[name] = true
	}
	return restoreFolderTitle(tx, folder, ClassesFolderTitle)
}

// classByTitle resolves a class when exactly one class carries title.
func classByTitle(view core.TransactionView, title string) (string, bool) {
	brains := view.Search(core.Query{PortalType: domain.TypeAntibioticClass, Title: title})
	if len(brains) != 1 {
		return "", false
	}
	return brains[0].UID, true
}

// SetupAntibiotics creates the default antibiotics. Existing titles and
// abbreviations are skipped, as are rows whose class cannot be resolved.
func SetupAntibiotics(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("setting up default antibiotics")
	folder, err := setupFolderByID(tx, AntibioticsFolderID)
	if err != nil {
		return err
	}
	existing := childTitles(tx, folder.UID)
	for _, seed := range SeedAntibiotics {
		if existing[seed.Name] {
			log.Warn("antibiotic already exists, skipping", "title", seed.Name)
			continue
		}
		view := tx.Snapshot()
		if err := ValidateTitle(view, "", seed.Name); err != nil {
			log.Warn("antibiotic title already in use, skipping", "title", seed.Name)
			continue
		}
		if err := ValidateAbbreviation(view, "", seed.Abbreviation); err != nil {
			log.Warn("antibiotic abbreviation already in use, skipping", "title", seed.Name, "abbreviation", seed.Abbreviation)
			continue
		}
		classUID, ok := classByTitle(view, seed.Class)
		if !ok {
			log.Error("antibiotic class missing, skipping", "title", seed.Name, "class", seed.Class)
			continue
		}

		log.Info("adding antibiotic", "title", seed.Name)
		a := core.Antibiotic{Base: core.Base{Title: seed.Name, ParentUID: folder.UID}}
		if err := domain.AntibioticFields.Set(&a, "abbreviation", seed.Abbreviation); err != nil {
			return err
		}
		if err := domain.AntibioticFields.Set(&a, "antibiotic_class", classUID); err != nil {
			return err
		}
		created, err := tx.CreateAntibiotic(a)
		if err != nil {
			return fmt.Errorf("add antibiotic %s: %w", seed.Name, err)
		}
		if err := tx.Reindex(created.UID); err != nil {
			return err
		}
		existing[seed.Name] = true
	}
	return restoreFolderTitle(tx, folder, AntibioticsFolderTitle)
}
