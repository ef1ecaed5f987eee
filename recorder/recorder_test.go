package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meridian/updater/updateflow"
)

// mockSender captures pixels instead of sending them.
type mockSender struct {
	pixels []map[string]string
	err    error
}

func (m *mockSender) SendPixel(ctx context.Context, params map[string]string) error {
	m.pixels = append(m.pixels, params)
	return m.err
}

func newTestRecorder(t *testing.T, sender PixelSender) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "flows.db"), sender, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleFlow(id string) updateflow.FlowState {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return updateflow.FlowState{
		ID:                  id,
		FromVersion:         "1.0.0",
		FromBuild:           "100",
		InitiationType:      updateflow.InitiationAutomatic,
		UpdateConfiguration: updateflow.ConfigurationAutomatic,
		LastKnownStep:       updateflow.StepCheckStarted,
		OSVersion:           "linux",
		TotalDuration:       updateflow.OpenInterval(start),
		UpdateCheckDuration: updateflow.OpenInterval(start),
	}
}

func TestStartThenOpenFlows(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, nil)

	if err := r.Start(sampleFlow("flow-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(sampleFlow("flow-2")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	open, err := r.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("OpenFlows() = %d flows, want 2", len(open))
	}
	if open[0].FromVersion != "1.0.0" || open[0].LastKnownStep != updateflow.StepCheckStarted {
		t.Errorf("round-tripped flow = %+v", open[0])
	}
}

func TestUpdateReplacesSnapshot(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, nil)

	flow := sampleFlow("flow-1")
	if err := r.Start(flow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	flow.LastKnownStep = updateflow.StepDownloadStarted
	flow.ToVersion = "1.1.0"
	if err := r.Update(flow); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	open, err := r.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("OpenFlows() = %d flows, want 1", len(open))
	}
	if open[0].LastKnownStep != updateflow.StepDownloadStarted || open[0].ToVersion != "1.1.0" {
		t.Errorf("stored snapshot = %+v, want updated fields", open[0])
	}
}

func TestUpdateForUnknownFlowStoresIt(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, nil)

	if err := r.Update(sampleFlow("never-started")); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	open, err := r.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 1 || open[0].ID != "never-started" {
		t.Errorf("OpenFlows() = %+v, want the stored flow", open)
	}
}

func TestCompleteSendsPixelAndRemovesFlow(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	r := newTestRecorder(t, sender)

	flow := sampleFlow("flow-1")
	if err := r.Start(flow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Complete(flow, updateflow.Success(updateflow.ReasonNoUpdateAvailable)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(sender.pixels) != 1 {
		t.Fatalf("pixels sent = %d, want 1", len(sender.pixels))
	}
	if sender.pixels[0]["feature.name"] != "app_update_flow" {
		t.Errorf("pixel feature.name = %q", sender.pixels[0]["feature.name"])
	}

	open, err := r.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 0 {
		t.Errorf("OpenFlows() = %d flows after completion, want 0", len(open))
	}
}

func TestCompleteSwallowsSendFailure(t *testing.T) {
	t.Parallel()

	sender := &mockSender{err: errors.New("endpoint down")}
	r := newTestRecorder(t, sender)

	flow := sampleFlow("flow-1")
	if err := r.Start(flow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Telemetry is best effort; the flow must still be closed out.
	if err := r.Complete(flow, updateflow.Failure()); err != nil {
		t.Fatalf("Complete() error = %v, want nil despite send failure", err)
	}

	open, err := r.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 0 {
		t.Error("flow left open after a failed pixel send")
	}
}

func TestCompleteWithNilSender(t *testing.T) {
	t.Parallel()

	r := newTestRecorder(t, nil)
	flow := sampleFlow("flow-1")
	if err := r.Start(flow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Complete(flow, updateflow.Cancelled(updateflow.CancelAppQuit)); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestOpenFlowsPersistAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flows.db")

	r, err := NewSQLiteRecorder(path, nil, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() error = %v", err)
	}
	if err := r.Start(sampleFlow("crashed")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Close()

	reopened, err := NewSQLiteRecorder(path, nil, nil)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder() reopen error = %v", err)
	}
	defer reopened.Close()

	open, err := reopened.OpenFlows()
	if err != nil {
		t.Fatalf("OpenFlows() error = %v", err)
	}
	if len(open) != 1 || open[0].ID != "crashed" {
		t.Errorf("OpenFlows() after reopen = %+v, want the crashed flow", open)
	}
}
