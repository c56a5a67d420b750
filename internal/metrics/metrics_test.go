package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	if m.SubmissionsTotal == nil {
		t.Error("SubmissionsTotal is nil")
	}
	if m.RunsAbortedTotal == nil {
		t.Error("RunsAbortedTotal is nil")
	}
	if m.RecipientsSyncedTotal == nil {
		t.Error("RecipientsSyncedTotal is nil")
	}
	if m.WelcomeMailsTotal == nil {
		t.Error("WelcomeMailsTotal is nil")
	}
	if m.RemoteCallsTotal == nil {
		t.Error("RemoteCallsTotal is nil")
	}
	if m.SnapshotHitsTotal == nil {
		t.Error("SnapshotHitsTotal is nil")
	}
}

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
	}
	return total
}

func TestHelpersWithGlobal(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncSubmissions("contact")
	IncSubmissions("contact")
	IncRunsAborted("no email or sms value submitted")
	IncRecipientsSynced("contact")
	IncWelcomeMails()
	IncRemoteCall("sites", false)
	IncRemoteCall("getRecipientByEmail", true)
	IncSnapshotHit()
	IncSnapshotMiss()
	ObserveAPIRequest("POST", "/api/v1/forms/contact/submissions", "202", 0.05)

	tests := []struct {
		name string
		want float64
	}{
		{"formsync_submissions_total", 2},
		{"formsync_runs_aborted_total", 1},
		{"formsync_recipients_synced_total", 1},
		{"formsync_welcome_mails_total", 1},
		{"formsync_remote_calls_total", 2},
		{"formsync_remote_errors_total", 1},
		{"formsync_snapshot_hits_total", 1},
		{"formsync_snapshot_misses_total", 1},
		{"formsync_api_requests_total", 1},
	}
	for _, tt := range tests {
		if got := counterValue(t, m, tt.name); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHelpersWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	// must be safe no-ops when metrics are disabled
	IncSubmissions("contact")
	IncRunsAborted("reason")
	IncRecipientsSynced("contact")
	IncWelcomeMails()
	IncRemoteCall("sites", true)
	IncSnapshotHit()
	IncSnapshotMiss()
	ObserveAPIRequest("GET", "/health", "200", 0.01)
}

func TestRemoteErrorLabels(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncRemoteCall("createAndJoinRecipient", true)
	IncRemoteCall("createAndJoinRecipient", false)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var errMetric *dto.Metric
	for _, mf := range families {
		if mf.GetName() == "formsync_remote_errors_total" {
			errMetric = mf.GetMetric()[0]
		}
	}
	if errMetric == nil {
		t.Fatal("formsync_remote_errors_total not gathered")
	}
	if got := errMetric.GetCounter().GetValue(); got != 1 {
		t.Errorf("remote errors = %v, want 1", got)
	}
	if len(errMetric.GetLabel()) != 1 || errMetric.GetLabel()[0].GetValue() != "createAndJoinRecipient" {
		t.Errorf("labels = %v", errMetric.GetLabel())
	}
}
