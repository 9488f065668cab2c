package abx

import (
	"context"
	"fmt"

	"abxcore/internal/core"
	"abxcore/pkg/domain"
)

// Schema identifiers of the Antibiotic type.
const (
	AntibioticSchema       = "senaite.abx.content.antibiotic.IAntibioticSchema"
	LegacyAntibioticSchema = "senaite.abx.content.antibiotic.IAntibiotic"
)

// Behaviors dropped from the Antibiotic type by the 1200 upgrade.
const (
	BehaviorBasic      = "plone.app.dexterity.behaviors.metadata.IBasic"
	BehaviorAntibiotic = "senaite.abx.behaviors.antibiotic.IAntibioticBehavior"
)

// upgradeTo1200 turns flat antibiotics into folderish ones. Every legacy
// record is replaced by an Antibiotic with the same UID, id, parent and
// values; the type registry entry switches to the new schema.
func upgradeTo1200(_ context.Context, tx core.Transaction, log core.Logger) error {
	log.Info("removing antibiotic behavior")
	if err := migrateAntibioticType(tx); err != nil {
		return err
	}
	legacy := tx.Snapshot().ListLegacyAntibiotics()
	for _, l := range legacy {
		a := fromLegacy(l)
		if a.AntibioticClassUID != "" && !domain.IsUID(a.AntibioticClassUID) {
			log.Warn("dropping malformed antibiotic class reference", "uid", a.UID, "antibiotic_class", a.AntibioticClassUID)
			a.AntibioticClassUID = ""
		}
		if a.Abbreviation == "" {
			log.Warn("migrated antibiotic has no abbreviation", "uid", a.UID, "title", a.Title)
		}
		if _, err := tx.MigrateLegacyAntibiotic(a); err != nil {
			return fmt.Errorf("migrate antibiotic %s: %w", l.ID, err)
		}
		log.Debug("migrated antibiotic", "uid", a.UID, "id", a.ID)
	}
	log.Info("antibiotics migrated", "count", len(legacy))
	return nil
}

func migrateAntibioticType(tx core.Transaction) error {
	if _, ok := tx.TypeInfo(domain.TypeAntibiotic); !ok {
		return tx.RegisterType(antibioticType)
	}
	_, err := tx.UpdateType(domain.TypeAntibiotic, func(ti *core.TypeInfo) error {
		ti.Schema = AntibioticSchema
		kept := ti.Behaviors[:0]
		for _, b := range ti.Behaviors {
			if b != BehaviorBasic && b != BehaviorAntibiotic {
				kept = append(kept, b)
			}
		}
		ti.Behaviors = kept
		ti.Folderish = true
		return nil
	})
	return err
}
