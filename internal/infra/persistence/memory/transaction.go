package memory

import (
	"fmt"
	"strings"
	"time"

	"abxcore/pkg/domain"
)

// transaction represents a mutation set applied to a private copy of the store state.
type transaction struct {
	transactionView
	changes []Change
	now     time.Time
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return tx.transactionView
}

func (tx *transaction) canContain(parent domain.Base, childType string) bool {
	if ti, ok := tx.state.types[parent.PortalType]; ok {
		return ti.Allows(childType)
	}
	_, isFolder := tx.state.folders[parent.UID]
	return isFolder
}

func (tx *transaction) nextID(parentUID, portalType string) string {
	prefix := strings.ToLower(portalType)
	for n := 1; ; n++ {
		id := fmt.Sprintf("%s-%d", prefix, n)
		if _, taken := tx.ChildByID(parentUID, id); !taken {
			return id
		}
	}
}

// prepareCreate assigns identity and timestamps. Brand new records (no
// CreatedAt) start in the active workflow state; records carried over from
// elsewhere keep their flag.
func (tx *transaction) prepareCreate(b *domain.Base, portalType string) error {
	b.PortalType = portalType
	b.Title = strings.TrimSpace(b.Title)
	if b.UID == "" {
		b.UID = NewUID()
	} else if _, _, exists := tx.state.record(b.UID); exists {
		return fmt.Errorf("record %q already exists", b.UID)
	}
	if b.ParentUID != "" {
		parent, _, ok := tx.state.record(b.ParentUID)
		if !ok {
			return fmt.Errorf("parent %s: %w", b.ParentUID, ErrNotFound)
		}
		if !tx.canContain(parent, portalType) {
			return fmt.Errorf("%s %q does not allow %s children", parent.PortalType, parent.ID, portalType)
		}
	}
	if b.ID == "" {
		b.ID = tx.nextID(b.ParentUID, portalType)
	} else if _, taken := tx.ChildByID(b.ParentUID, b.ID); taken {
		return fmt.Errorf("id %q already exists in container %q", b.ID, b.ParentUID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = tx.now
		b.Active = true
	}
	b.UpdatedAt = tx.now
	return nil
}

// pinIdentity restores fields a mutator is not allowed to change.
func pinIdentity(after *domain.Base, before domain.Base, now time.Time) {
	after.UID = before.UID
	after.ID = before.ID
	after.ParentUID = before.ParentUID
	after.PortalType = before.PortalType
	after.CreatedAt = before.CreatedAt
	after.UpdatedAt = now
	after.Title = strings.TrimSpace(after.Title)
}

// CreateFolder stores a new container record.
func (tx *transaction) CreateFolder(f Folder) (Folder, error) {
	if f.PortalType == "" {
		return Folder{}, fmt.Errorf("folder %q: portal type required", f.ID)
	}
	if err := tx.prepareCreate(&f.Base, f.PortalType); err != nil {
		return Folder{}, err
	}
	if err := domain.ValidateRequired(f); err != nil {
		return Folder{}, err
	}
	tx.state.folders[f.UID] = f
	tx.state.reindex(f.Base)
	tx.recordChange(Change{Entity: domain.EntityFolder, Action: domain.ActionCreate, After: f})
	return f, nil
}

// UpdateFolder mutates an existing folder.
func (tx *transaction) UpdateFolder(uid string, mutator func(*Folder) error) (Folder, error) {
	current, ok := tx.state.folders[uid]
	if !ok {
		return Folder{}, fmt.Errorf("folder %s: %w", uid, ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Folder{}, err
	}
	pinIdentity(&current.Base, before.Base, tx.now)
	if err := domain.ValidateRequired(current); err != nil {
		return Folder{}, err
	}
	tx.state.folders[uid] = current
	tx.state.reindex(current.Base)
	tx.recordChange(Change{Entity: domain.EntityFolder, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateAntibioticClass stores a new antibiotic class.
func (tx *transaction) CreateAntibioticClass(c AntibioticClass) (AntibioticClass, error) {
	if err := tx.prepareCreate(&c.Base, domain.TypeAntibioticClass); err != nil {
		return AntibioticClass{}, err
	}
	if err := domain.ValidateRequired(c); err != nil {
		return AntibioticClass{}, err
	}
	tx.state.classes[c.UID] = c
	tx.state.reindex(c.Base)
	tx.recordChange(Change{Entity: domain.EntityAntibioticClass, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateAntibioticClass mutates an existing antibiotic class.
func (tx *transaction) UpdateAntibioticClass(uid string, mutator func(*AntibioticClass) error) (AntibioticClass, error) {
	current, ok := tx.state.classes[uid]
	if !ok {
		return AntibioticClass{}, fmt.Errorf("antibiotic class %s: %w", uid, ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return AntibioticClass{}, err
	}
	pinIdentity(&current.Base, before.Base, tx.now)
	if err := domain.ValidateRequired(current); err != nil {
		return AntibioticClass{}, err
	}
	tx.state.classes[uid] = current
	tx.state.reindex(current.Base)
	tx.recordChange(Change{Entity: domain.EntityAntibioticClass, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// CreateAntibiotic stores a new antibiotic.
func (tx *transaction) CreateAntibiotic(a Antibiotic) (Antibiotic, error) {
	if err := normalizeAntibiotic(&a); err != nil {
		return Antibiotic{}, err
	}
	if err := tx.prepareCreate(&a.Base, domain.TypeAntibiotic); err != nil {
		return Antibiotic{}, err
	}
	if err := domain.ValidateRequired(a); err != nil {
		return Antibiotic{}, err
	}
	tx.state.antibiotics[a.UID] = a
	tx.state.reindex(a.Base)
	tx.recordChange(Change{Entity: domain.EntityAntibiotic, Action: domain.ActionCreate, After: a})
	return a, nil
}

// UpdateAntibiotic mutates an existing antibiotic.
func (tx *transaction) UpdateAntibiotic(uid string, mutator func(*Antibiotic) error) (Antibiotic, error) {
	current, ok := tx.state.antibiotics[uid]
	if !ok {
		return Antibiotic{}, fmt.Errorf("antibiotic %s: %w", uid, ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Antibiotic{}, err
	}
	pinIdentity(&current.Base, before.Base, tx.now)
	if err := normalizeAntibiotic(&current); err != nil {
		return Antibiotic{}, err
	}
	if err := domain.ValidateRequired(current); err != nil {
		return Antibiotic{}, err
	}
	tx.state.antibiotics[uid] = current
	tx.state.reindex(current.Base)
	tx.recordChange(Change{Entity: domain.EntityAntibiotic, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// MigrateLegacyAntibiotic replaces the legacy record with the same UID by a.
// Values are carried over as stored: required fields are not enforced so
// incomplete legacy records survive the migration and can be edited later.
func (tx *transaction) MigrateLegacyAntibiotic(a Antibiotic) (Antibiotic, error) {
	legacy, ok := tx.state.legacy[a.UID]
	if !ok {
		return Antibiotic{}, fmt.Errorf("legacy antibiotic %s: %w", a.UID, ErrNotFound)
	}
	pinIdentity(&a.Base, legacy.Base, tx.now)
	a.PortalType = domain.TypeAntibiotic
	a.Active = legacy.Active
	a.Title = strings.TrimSpace(a.Title)
	a.Abbreviation = strings.TrimSpace(a.Abbreviation)
	before := cloneLegacy(legacy)
	delete(tx.state.legacy, a.UID)
	tx.state.antibiotics[a.UID] = a
	tx.state.reindex(a.Base)
	tx.recordChange(Change{Entity: domain.EntityAntibiotic, Action: domain.ActionUpdate, Before: before, After: a})
	return a, nil
}

// normalizeAntibiotic routes the free-text fields through the Antibiotic
// field registry so trimming and the class reference check apply on every
// write.
func normalizeAntibiotic(a *Antibiotic) error {
	for _, name := range []string{"title", "abbreviation", "antibiotic_class"} {
		v, err := domain.AntibioticFields.Get(*a, name)
		if err != nil {
			return err
		}
		if err := domain.AntibioticFields.Set(a, name, v); err != nil {
			return err
		}
	}
	return nil
}

// SetActive performs the activate/deactivate workflow transition on any record.
func (tx *transaction) SetActive(uid string, active bool) (domain.Base, error) {
	_, entity, ok := tx.state.record(uid)
	if !ok {
		return domain.Base{}, fmt.Errorf("record %s: %w", uid, ErrNotFound)
	}
	toggle := func(b *domain.Base) error {
		b.Active = active
		return nil
	}
	switch entity {
	case domain.EntityFolder:
		f, err := tx.UpdateFolder(uid, func(f *Folder) error { return toggle(&f.Base) })
		return f.Base, err
	case domain.EntityAntibioticClass:
		c, err := tx.UpdateAntibioticClass(uid, func(c *AntibioticClass) error { return toggle(&c.Base) })
		return c.Base, err
	case domain.EntityAntibiotic:
		a, err := tx.UpdateAntibiotic(uid, func(a *Antibiotic) error { return toggle(&a.Base) })
		return a.Base, err
	default:
		return domain.Base{}, fmt.Errorf("%s records have no workflow", entity)
	}
}

// Delete removes a record. Containers must be emptied first; references held
// by other records are left dangling.
func (tx *transaction) Delete(uid string) error {
	current, entity, ok := tx.state.record(uid)
	if !ok {
		return fmt.Errorf("record %s: %w", uid, ErrNotFound)
	}
	if kids := tx.state.children(uid); len(kids) > 0 {
		return fmt.Errorf("%s %q still contains %d records", current.PortalType, current.ID, len(kids))
	}
	var before any
	switch entity {
	case domain.EntityFolder:
		before = tx.state.folders[uid]
		delete(tx.state.folders, uid)
	case domain.EntityAntibioticClass:
		before = tx.state.classes[uid]
		delete(tx.state.classes, uid)
	case domain.EntityAntibiotic:
		before = tx.state.antibiotics[uid]
		delete(tx.state.antibiotics, uid)
	case domain.EntityLegacyAntibiotic:
		before = cloneLegacy(tx.state.legacy[uid])
		delete(tx.state.legacy, uid)
	}
	tx.state.catalog.Unindex(uid)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete, Before: before})
	return nil
}

// Reindex refreshes the catalog entry of a record.
func (tx *transaction) Reindex(uid string) error {
	b, _, ok := tx.state.record(uid)
	if !ok {
		return fmt.Errorf("record %s: %w", uid, ErrNotFound)
	}
	tx.state.reindex(b)
	return nil
}

// RegisterType adds or replaces a type registry entry.
func (tx *transaction) RegisterType(ti TypeInfo) error {
	if ti.Name == "" {
		return fmt.Errorf("type name required")
	}
	tx.state.types[ti.Name] = cloneTypeInfo(ti)
	return nil
}

// UpdateType mutates an existing type registry entry.
func (tx *transaction) UpdateType(name string, mutator func(*TypeInfo) error) (TypeInfo, error) {
	current, ok := tx.state.types[name]
	if !ok {
		return TypeInfo{}, fmt.Errorf("type %q not registered", name)
	}
	current = cloneTypeInfo(current)
	if err := mutator(&current); err != nil {
		return TypeInfo{}, err
	}
	current.Name = name
	tx.state.types[name] = cloneTypeInfo(current)
	return current, nil
}

// SetRegistryValues replaces the values stored under a registry key.
func (tx *transaction) SetRegistryValues(key string, values []string) {
	if len(values) == 0 {
		delete(tx.state.registry, key)
		return
	}
	tx.state.registry[key] = append([]string(nil), values...)
}

// SetInstalledVersion records the installed profile version.
func (tx *transaction) SetInstalledVersion(profile, version string) {
	tx.state.versions[profile] = version
}

// ClearInstalledVersion forgets a profile.
func (tx *transaction) ClearInstalledVersion(profile string) {
	delete(tx.state.versions, profile)
}
