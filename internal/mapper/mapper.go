// Package mapper translates the configured field-to-property map plus
// posted form values into the property payload the mailer expects.
package mapper

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nordmail/formsync/internal/form"
	"github.com/nordmail/formsync/internal/mailer"
)

// stripPolicy removes all markup from submitted values
var stripPolicy = bluemonday.StrictPolicy()

// Map builds the property payload for a subscription. For each site
// property the mapped form field is looked up in the posted entry; a
// field that was not posted at all is skipped so the existing remote
// value is not nulled out. Values are sanitized and keyed by property
// name, not handle. The caller excludes the core email and sms
// pseudo-properties before invocation.
func Map(fieldMap map[string]string, posted form.Entry, properties []mailer.Property) map[string]string {
	props := make(map[string]string)
	for _, prop := range properties {
		fieldID, ok := fieldMap[prop.Handle.String()]
		if !ok {
			continue
		}
		if !posted.Has(fieldID) {
			continue
		}
		props[prop.Name] = Sanitize(posted.Value(fieldID))
	}
	return props
}

// Sanitize strips markup and collapses whitespace in a submitted value
func Sanitize(value string) string {
	return strings.Join(strings.Fields(stripPolicy.Sanitize(value)), " ")
}
