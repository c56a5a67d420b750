package mailer

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Connection provides typed, non-throwing operations over the signed REST
// client. Each operation contains its own failures: a failed call is
// logged and surfaces as an empty or nil result so that one broken
// sub-step never blocks the rest of a reconciliation run.
type Connection struct {
	rest   *Rest
	logger *slog.Logger
}

// NewConnection creates a mailer connection facade
func NewConnection(rest *Rest, logger *slog.Logger) *Connection {
	return &Connection{rest: rest, logger: logger}
}

// Status performs an echo round-trip to verify credentials and reachability
func (c *Connection) Status(ctx context.Context) bool {
	res, err := c.rest.Call(ctx, "echoMessage", "hello")
	if err != nil {
		c.logger.Warn("mailer status check failed", "error", err)
		return false
	}
	var echo string
	if err := json.Unmarshal(res, &echo); err != nil {
		return false
	}
	return echo == "hello"
}

// AccountSites returns all sites on the account with their properties and
// lists. Layout, marketing, parent, child and authorization payloads are
// not requested. The all_lists flag makes the default list appear even
// when the account has multi-list subscription disabled.
func (c *Connection) AccountSites(ctx context.Context) []Site {
	args := []any{
		map[string]bool{
			"properties":    true,
			"lists":         true,
			"layout":        false,
			"marketing":     false,
			"parents":       false,
			"children":      false,
			"authorization": false,
		},
		map[string]bool{
			"all_lists": true,
		},
	}

	res, err := c.rest.Call(ctx, "sites", args)
	if err != nil {
		c.logger.Warn("fetching account sites failed", "error", err)
		return nil
	}

	var sites []Site
	if err := json.Unmarshal(res, &sites); err != nil {
		c.logger.Warn("decoding account sites failed", "error", err)
		return nil
	}
	return sites
}

// SiteConsents returns the consent types configured for a site domain
func (c *Connection) SiteConsents(ctx context.Context, domain string) []Consent {
	res, err := c.rest.Call(ctx, "getConsentTypesBySite", []any{domain})
	if err != nil {
		c.logger.Warn("fetching site consents failed", "domain", domain, "error", err)
		return nil
	}

	var consents []Consent
	if err := json.Unmarshal(res, &consents); err != nil {
		c.logger.Warn("decoding site consents failed", "domain", domain, "error", err)
		return nil
	}
	return consents
}

// Properties returns all custom recipient properties on the account
func (c *Connection) Properties(ctx context.Context) []Property {
	res, err := c.rest.Call(ctx, "getCustomerProperties", []any{})
	if err != nil {
		c.logger.Warn("fetching customer properties failed", "error", err)
		return nil
	}

	var props []Property
	if err := json.Unmarshal(res, &props); err != nil {
		c.logger.Warn("decoding customer properties failed", "error", err)
		return nil
	}
	return props
}

// Customer returns account-level settings, nil when they cannot be fetched
func (c *Connection) Customer(ctx context.Context) *Customer {
	res, err := c.rest.Call(ctx, "getCustomer", []any{})
	if err != nil {
		c.logger.Warn("fetching customer settings failed", "error", err)
		return nil
	}

	var cust Customer
	if err := json.Unmarshal(res, &cust); err != nil {
		c.logger.Warn("decoding customer settings failed", "error", err)
		return nil
	}
	return &cust
}

// NewSession starts a per-run recipient session. sourceURL is sent as
// audit metadata on every mutating call of the run.
func (c *Connection) NewSession(sourceURL string) *Session {
	return &Session{
		rest:      c.rest,
		logger:    c.logger,
		sourceURL: sourceURL,
	}
}
