// Package domain defines the persistent records, catalog primitives and rule
// evaluation types shared by abxcore and its plugins.
package domain

import (
	"encoding/hex"
	"strings"
	"time"
)

// EntityType identifies the bucket a record is stored in.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityFolder identifies container records (setup root and type folders).
	EntityFolder EntityType = "folder"
	// EntityAntibioticClass identifies an antibiotic class record.
	EntityAntibioticClass EntityType = "antibiotic_class"
	// EntityAntibiotic identifies an antibiotic record.
	EntityAntibiotic EntityType = "antibiotic"
	// EntityLegacyAntibiotic identifies a pre-1.2 flat antibiotic record.
	EntityLegacyAntibiotic EntityType = "legacy_antibiotic"
)

// Portal type names. These are the type identifiers stored on records and
// queried through the catalog.
const (
	TypeSetup                 = "Setup"
	TypeAntibioticClassFolder = "AntibioticClassFolder"
	TypeAntibioticFolder      = "AntibioticFolder"
	TypeAntibioticClass       = "AntibioticClass"
	TypeAntibiotic            = "Antibiotic"
)

// SetupRootID is the short id of the configuration root all setup folders live in.
const SetupRootID = "setup"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all records.
type Base struct {
	UID         string    `json:"uid"`
	ID          string    `json:"id"`
	ParentUID   string    `json:"parent_uid"`
	PortalType  string    `json:"portal_type"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record is implemented by every stored record type.
type Record interface {
	Meta() Base
}

// Meta returns the common record fields.
func (b Base) Meta() Base { return b }

// Folder is a container record with no behavior beyond hosting children.
type Folder struct {
	Base
}

// AntibioticClass is a named category of antibiotics.
type AntibioticClass struct {
	Base
}

// Antibiotic represents a single antibiotic substance.
type Antibiotic struct {
	Base
	Abbreviation       string `json:"abbreviation" validate:"required"`
	AntibioticClassUID string `json:"antibiotic_class"`
}

// LegacyAntibiotic is the flat, non-container representation used before
// profile version 1200. Type specific values live in the behavior bag.
type LegacyAntibiotic struct {
	Base
	Behaviors map[string]any `json:"behaviors"`
}

// Abbreviation returns the abbreviation stored by the antibiotic behavior.
func (l LegacyAntibiotic) Abbreviation() string {
	v, _ := l.Behaviors["abbreviation"].(string)
	return strings.TrimSpace(v)
}

// AntibioticClassUID returns the referenced class. Old behavior storage kept
// the reference either as a plain string or as a one element list.
func (l LegacyAntibiotic) AntibioticClassUID() string {
	switch v := l.Behaviors["antibiotic_class"].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// TypeInfo is the type registry entry describing how a portal type behaves.
type TypeInfo struct {
	Name                string   `json:"name"`
	Title               string   `json:"title"`
	Schema              string   `json:"schema"`
	Behaviors           []string `json:"behaviors"`
	Folderish           bool     `json:"folderish"`
	FilterContentTypes  bool     `json:"filter_content_types"`
	AllowedContentTypes []string `json:"allowed_content_types"`
	HiddenActions       bool     `json:"hidden_actions"`
}

// Allows reports whether a child of the given portal type may be added.
func (t TypeInfo) Allows(portalType string) bool {
	if !t.Folderish {
		return false
	}
	if !t.FilterContentTypes {
		return true
	}
	for _, allowed := range t.AllowedContentTypes {
		if allowed == portalType {
			return true
		}
	}
	return false
}

// IsUID reports whether value has the shape of a record UID.
func IsUID(value string) bool {
	if len(value) != 32 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil && strings.ToLower(value) == value
}

// Term is a single vocabulary option.
type Term struct {
	Value string `json:"value" yaml:"value"`
	Token string `json:"token" yaml:"token"`
	Title string `json:"title" yaml:"title"`
}

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	Field    string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
