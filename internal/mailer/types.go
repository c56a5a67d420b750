package mailer

import (
	"encoding/json"
	"strconv"
)

// envelope is the response wrapper used by every mailer API method
type envelope struct {
	Succeed bool            `json:"succeed"`
	Result  json.RawMessage `json:"result"`
	Message string          `json:"message"`
}

// Handle is a stable external property key. Custom properties carry numeric
// handles on the wire while core properties carry names, so both JSON forms
// are accepted.
type Handle string

// UnmarshalJSON accepts a JSON string or number
func (h *Handle) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = Handle(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*h = Handle(n.String())
	return nil
}

// MarshalJSON emits the handle as a string
func (h Handle) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

func (h Handle) String() string { return string(h) }

// Property describes a custom recipient attribute on the mailer side.
// The sites endpoint does not return Required/Type; they are merged in
// from getCustomerProperties when building a site snapshot.
type Property struct {
	Name     string `json:"name"`
	Handle   Handle `json:"handle"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

// CoreProperties returns the synthetic email and sms pseudo-properties.
// They identify recipients and are never persisted as mailer properties.
func CoreProperties() []Property {
	return []Property{
		{Name: "email", Handle: "email", Required: true, Type: "text"},
		{Name: "sms", Handle: "sms", Required: false, Type: "text"},
	}
}

// List is a mailing list on a mailer site
type List struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Consent is a versioned legal basis record. Revoked is only set on
// consents attached to a recipient.
type Consent struct {
	ConsentID       int    `json:"consent_id"`
	ConsentRevision int    `json:"consent_revision"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	Revoked         bool   `json:"revoked,omitempty"`
}

// Site is a mailer-side tenant grouping properties, lists and consents.
// Consents are not part of the sites payload; the site cache fills them
// from getConsentTypesBySite.
type Site struct {
	Domain     string          `json:"domain"`
	Welcome    bool            `json:"welcome"`
	Redirect   json.RawMessage `json:"redirect,omitempty"`
	ReplacedBy json.RawMessage `json:"replaced_by,omitempty"`
	Properties []Property      `json:"properties"`
	Lists      []List          `json:"lists"`
	Consents   []Consent       `json:"consents,omitempty"`
}

// Retired reports whether the site has been redirected or replaced and
// should not be offered for subscription.
func (s *Site) Retired() bool {
	return rawSet(s.Redirect) || rawSet(s.ReplacedBy)
}

// HasList reports whether the given list id exists on the site
func (s *Site) HasList(id int) bool {
	for _, l := range s.Lists {
		if l.ID == id {
			return true
		}
	}
	return false
}

// ConsentByID returns the site consent with the given id, or nil
func (s *Site) ConsentByID(id int) *Consent {
	for i := range s.Consents {
		if s.Consents[i].ConsentID == id {
			return &s.Consents[i]
		}
	}
	return nil
}

// rawSet treats JSON null, false, "", and 0 as unset
func rawSet(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// Recipient is the mailer-owned contact record
type Recipient struct {
	ID        flexInt `json:"id"`
	Email     string  `json:"email"`
	SMS       string  `json:"sms"`
	Enabled   bool    `json:"enabled"`
	Confirmed bool    `json:"confirmed"`
}

// RecipientResult is the payload returned by recipient lookups
type RecipientResult struct {
	Recipient *Recipient `json:"recipient"`
	Consents  []Consent  `json:"consents"`
}

// Customer holds account-level mailer settings
type Customer struct {
	RegistrationNeedsConfirmation bool `json:"registration_needs_confirmation"`
}

// flexInt accepts a JSON number or numeric string; the API is not
// consistent about which it returns for record ids.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func (f flexInt) Int() int { return int(f) }
