package mapper

import (
	"reflect"
	"testing"

	"github.com/nordmail/formsync/internal/form"
	"github.com/nordmail/formsync/internal/mailer"
)

func TestMap(t *testing.T) {
	properties := []mailer.Property{
		{Name: "First name", Handle: "7"},
		{Name: "Company", Handle: "8"},
		{Name: "Country", Handle: "9"},
	}
	fieldMap := map[string]string{
		"email": "3",
		"sms":   "4",
		"7":     "field_name",
		"8":     "field_company",
	}
	posted := form.Entry{
		"3":          "a@b.com",
		"field_name": "Ada",
	}

	got := Map(fieldMap, posted, properties)
	want := map[string]string{"First name": "Ada"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Map() = %v, want %v", got, want)
	}
}

func TestMapEmptyValueClears(t *testing.T) {
	properties := []mailer.Property{{Name: "Company", Handle: "8"}}
	fieldMap := map[string]string{"8": "field_company"}

	// posted but empty: the remote value should be overwritten with ""
	posted := form.Entry{"field_company": ""}
	got := Map(fieldMap, posted, properties)
	if v, ok := got["Company"]; !ok || v != "" {
		t.Errorf("Map() = %v, want Company present and empty", got)
	}

	// not posted at all: the property must be skipped
	got = Map(fieldMap, form.Entry{}, properties)
	if _, ok := got["Company"]; ok {
		t.Errorf("Map() = %v, want Company absent", got)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"<b>bold</b>", "bold"},
		{"<script>alert(1)</script>name", "name"},
		{"  spaced \t out\n", "spaced out"},
		{"a, b, c", "a, b, c"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
