package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Field binds a named field of record type T to its accessor, mutator and
// raw-value reader.
type Field[T any] struct {
	Name string
	Get  func(T) string
	Set  func(*T, string) error
	Raw  func(T) any
}

// FieldSet is the field registry for one record type.
type FieldSet[T any] struct {
	fields map[string]Field[T]
}

// NewFieldSet builds a registry; later fields with the same name win.
func NewFieldSet[T any](fields ...Field[T]) FieldSet[T] {
	set := FieldSet[T]{fields: make(map[string]Field[T], len(fields))}
	for _, f := range fields {
		if f.Raw == nil {
			get := f.Get
			f.Raw = func(rec T) any { return get(rec) }
		}
		set.fields[f.Name] = f
	}
	return set
}

// Names returns the registered field names in sorted order.
func (s FieldSet[T]) Names() []string {
	out := make([]string, 0, len(s.fields))
	for name := range s.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s FieldSet[T]) lookup(name string) (Field[T], error) {
	f, ok := s.fields[name]
	if !ok {
		return Field[T]{}, fmt.Errorf("unknown field %q", name)
	}
	return f, nil
}

// Get returns the field value through its accessor.
func (s FieldSet[T]) Get(rec T, name string) (string, error) {
	f, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	return f.Get(rec), nil
}

// Set assigns value through the field mutator.
func (s FieldSet[T]) Set(rec *T, name, value string) error {
	f, err := s.lookup(name)
	if err != nil {
		return err
	}
	if f.Set == nil {
		return fmt.Errorf("field %q is read-only", name)
	}
	return f.Set(rec, value)
}

// Raw returns the stored value without accessor post-processing.
func (s FieldSet[T]) Raw(rec T, name string) (any, error) {
	f, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return f.Raw(rec), nil
}

func titleField[T any](base func(*T) *Base) Field[T] {
	return Field[T]{
		Name: "title",
		Get:  func(rec T) string { return base(&rec).Title },
		Set: func(rec *T, v string) error {
			base(rec).Title = strings.TrimSpace(v)
			return nil
		},
	}
}

func descriptionField[T any](base func(*T) *Base) Field[T] {
	return Field[T]{
		Name: "description",
		Get:  func(rec T) string { return base(&rec).Description },
		Set: func(rec *T, v string) error {
			base(rec).Description = v
			return nil
		},
	}
}

// AntibioticFields is the field registry for Antibiotic records.
var AntibioticFields = NewFieldSet(
	titleField(func(a *Antibiotic) *Base { return &a.Base }),
	descriptionField(func(a *Antibiotic) *Base { return &a.Base }),
	Field[Antibiotic]{
		Name: "abbreviation",
		Get:  func(a Antibiotic) string { return a.Abbreviation },
		Set: func(a *Antibiotic, v string) error {
			a.Abbreviation = strings.TrimSpace(v)
			return nil
		},
	},
	Field[Antibiotic]{
		Name: "antibiotic_class",
		Get:  func(a Antibiotic) string { return a.AntibioticClassUID },
		Set: func(a *Antibiotic, v string) error {
			v = strings.TrimSpace(v)
			if v != "" && !IsUID(v) {
				return &FieldError{Field: "antibiotic_class", Message: "Antibiotic class must reference a record"}
			}
			a.AntibioticClassUID = v
			return nil
		},
		Raw: func(a Antibiotic) any { return a.AntibioticClassUID },
	},
)

// AntibioticClassFields is the field registry for AntibioticClass records.
var AntibioticClassFields = NewFieldSet(
	titleField(func(c *AntibioticClass) *Base { return &c.Base }),
	descriptionField(func(c *AntibioticClass) *Base { return &c.Base }),
)
