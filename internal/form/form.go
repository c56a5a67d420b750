// Package form models the form definitions and submitted entries that the
// hosting form builder delivers. Definitions are read-only configuration;
// the reconciler trusts them as already validated at load time.
package form

import (
	"fmt"
	"strconv"
	"strings"
)

// Field types. A form has any number of standard fields and at most one
// mailer integration field; the integration field carries the opt-in flag
// and the property map.
const (
	TypeText     = "text"
	TypeEmail    = "email"
	TypePhone    = "phone"
	TypeCheckbox = "checkbox"
	TypeSelect   = "select"
	TypeMailer   = "mailer"
)

// Field is one input on a form. OptIn and Properties are only meaningful
// on the mailer integration field.
type Field struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Type  string `yaml:"type" json:"type"`

	OptIn bool `yaml:"opt_in,omitempty" json:"opt_in,omitempty"`
	// Properties maps mailer property handles to form field ids.
	// Only the email and sms handles are semantically special.
	Properties map[string]string `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// Integration is the per-form mailer integration configuration
type Integration struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Site        string `yaml:"site" json:"site"`
	MailingList int    `yaml:"mailing_list" json:"mailing_list"`
	Consent     int    `yaml:"consent" json:"consent"`
}

// Form is one form definition
type Form struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	SourceURL   string      `yaml:"source_url" json:"source_url"`
	Fields      []Field     `yaml:"fields" json:"fields"`
	Integration Integration `yaml:"integration" json:"integration"`
}

// IntegrationField returns the form's mailer field, or nil if it has none
func (f *Form) IntegrationField() *Field {
	for i := range f.Fields {
		if f.Fields[i].Type == TypeMailer {
			return &f.Fields[i]
		}
	}
	return nil
}

// Validate checks the structural invariants the reconciler relies on:
// unique field ids, at most one mailer field, and a property map that
// only references fields present on the form.
func (f *Form) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("form id is required")
	}

	seen := make(map[string]bool, len(f.Fields))
	mailerFields := 0
	for _, field := range f.Fields {
		if field.ID == "" {
			return fmt.Errorf("form %s: field id is required", f.ID)
		}
		if seen[field.ID] {
			return fmt.Errorf("form %s: duplicate field id %s", f.ID, field.ID)
		}
		seen[field.ID] = true
		if field.Type == TypeMailer {
			mailerFields++
		}
	}
	if mailerFields > 1 {
		return fmt.Errorf("form %s: only one mailer field is allowed", f.ID)
	}

	if mf := f.IntegrationField(); mf != nil {
		for handle, fieldID := range mf.Properties {
			if fieldID == "" {
				return fmt.Errorf("form %s: property %s maps to an empty field id", f.ID, handle)
			}
			if !seen[fieldID] {
				return fmt.Errorf("form %s: property %s maps to unknown field %s", f.ID, handle, fieldID)
			}
		}
	}

	return nil
}

// Entry holds submitted values keyed by field id, flattened to strings
type Entry map[string]string

// Value returns the submitted value for a field id, "" when absent
func (e Entry) Value(fieldID string) string {
	return e[fieldID]
}

// Has reports whether a value was submitted for the field id at all.
// A submitted empty string still counts as present.
func (e Entry) Has(fieldID string) bool {
	_, ok := e[fieldID]
	return ok
}

// Flatten converts raw submitted values into an Entry. Multi-valued
// inputs are joined with ", " after dropping empty items; a multi-valued
// input with no non-empty items is omitted entirely so it cannot null
// out an existing remote value.
func Flatten(values map[string]any) Entry {
	entry := make(Entry, len(values))
	for fieldID, raw := range values {
		switch v := raw.(type) {
		case nil:
			entry[fieldID] = ""
		case string:
			entry[fieldID] = v
		case []string:
			if joined := joinValues(v); joined != "" {
				entry[fieldID] = joined
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, stringify(item))
			}
			if joined := joinValues(parts); joined != "" {
				entry[fieldID] = joined
			}
		default:
			entry[fieldID] = stringify(raw)
		}
	}
	return entry
}

func joinValues(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers decode as float64
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
