package updateflow

import (
	"fmt"
	"sync"
	"time"
)

// Recorder receives the start/update/complete record stream for flows. The
// store of started-but-not-completed flows must survive process restarts so
// crashed attempts can be closed out on the next launch.
type Recorder interface {
	Start(flow FlowState) error
	Update(flow FlowState) error
	Complete(flow FlowState, status CompletionStatus) error
	OpenFlows() ([]FlowState, error)
}

// LastUpdateStore persists the timestamp of the most recent successful
// update. It feeds time-since-last-update bucketing and nothing else; check
// rate limiting keeps its own clock.
type LastUpdateStore interface {
	LastSuccessfulUpdate() (time.Time, bool)
	SetLastSuccessfulUpdate(t time.Time) error
}

// Logger is the subset of the logger package the controller needs.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	Recorder    Recorder
	LastUpdate  LastUpdateStore
	Environment func() Environment
	Clock       func() time.Time
	DiskSpace   func() (int64, error)
	Log         Logger
}

// Controller drives a FlowState through its lifecycle. At most one flow is
// active at a time; starting a new flow force-completes the previous one.
// All mutations are serialized through a single mutex, since progress
// arrives both from engine callbacks and from app-lifecycle signals.
type Controller struct {
	recorder   Recorder
	lastUpdate LastUpdateStore
	env        func() Environment
	clock      func() time.Time
	diskSpace  func() (int64, error)
	log        Logger

	mu     sync.Mutex
	active *FlowState
}

// NewController creates a flow lifecycle controller.
func NewController(opts ControllerOptions) (*Controller, error) {
	if opts.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if opts.Environment == nil {
		return nil, fmt.Errorf("environment provider is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	diskSpace := opts.DiskSpace
	if diskSpace == nil {
		diskSpace = availableDiskSpaceBytes
	}

	return &Controller{
		recorder:   opts.Recorder,
		lastUpdate: opts.LastUpdate,
		env:        opts.Environment,
		clock:      clock,
		diskSpace:  diskSpace,
		log:        opts.Log,
	}, nil
}

// Active reports whether a flow is currently in flight and, if so, its last
// known step. Exposed for workers and tests; callers must not rely on it for
// transition decisions.
func (c *Controller) Active() (Step, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.LastKnownStep, true
}

// Snapshot returns a copy of the active flow, if any.
func (c *Controller) Snapshot() (FlowState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return FlowState{}, false
	}
	return c.active.clone(), true
}

// StartFlow begins tracking a new update attempt. Any flow still in flight
// is first force-completed as unknown("incomplete"): a new check superseding
// an old one means the old attempt never reached a terminal event.
func (c *Controller) StartFlow(initiation InitiationType) FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.active != nil {
		c.logDebug("Superseding in-flight update flow", "id", c.active.ID, "step", c.active.LastKnownStep)
		c.completeLocked(Unknown(ReasonIncomplete), now)
	}

	flow := newFlowState(c.env(), initiation, now)
	c.active = flow

	if err := c.recorder.Start(flow.clone()); err != nil {
		c.logWarn("Failed to record flow start", "id", flow.ID, "error", err)
	}
	c.logInfo("Update flow started", "id", flow.ID, "initiation", initiation)
	return flow.clone()
}

// DidFindUpdate records that the engine found an update. The check duration
// closes here, and the time since the last successful update is bucketed
// once and frozen.
func (c *Controller) DidFindUpdate(version, build string, critical bool) {
	c.mutate(StepUpdateFound, func(f *FlowState, now time.Time) {
		f.UpdateCheckDuration.Close(now)
		f.ToVersion = version
		f.ToBuild = build
		f.UpdateType = UpdateTypeRegular
		if critical {
			f.UpdateType = UpdateTypeCritical
		}
		if c.lastUpdate != nil {
			if last, ok := c.lastUpdate.LastSuccessfulUpdate(); ok {
				f.TimeSinceLastUpdate = BucketSince(last, now)
			}
		}
	})
}

// DidStartDownload records the beginning of the download stage.
func (c *Controller) DidStartDownload() {
	c.mutate(StepDownloadStarted, func(f *FlowState, now time.Time) {
		f.UpdateCheckDuration.Close(now)
		if f.DownloadDuration == nil {
			f.DownloadDuration = OpenInterval(now)
		}
	})
}

// DidCompleteDownload records the end of the download stage.
func (c *Controller) DidCompleteDownload() {
	c.mutate(StepDownloadCompleted, func(f *FlowState, now time.Time) {
		f.DownloadDuration.Close(now)
	})
}

// DidStartExtraction records the beginning of the extraction stage. A
// download interval still open at this point is closed; some engines report
// extraction without a separate download-finished event.
func (c *Controller) DidStartExtraction() {
	c.mutate(StepExtractionStarted, func(f *FlowState, now time.Time) {
		f.DownloadDuration.Close(now)
		if f.ExtractionDuration == nil {
			f.ExtractionDuration = OpenInterval(now)
		}
	})
}

// DidCompleteExtraction records the end of the extraction stage.
func (c *Controller) DidCompleteExtraction() {
	c.mutate(StepExtractionCompleted, func(f *FlowState, now time.Time) {
		f.ExtractionDuration.Close(now)
	})
}

// DidInitiateRestart records that the app is relaunching to install. The
// flow stays open: installation finishes asynchronously and is observed as
// either a later completion or app termination.
func (c *Controller) DidInitiateRestart() {
	c.mutate(StepRestartingToUpdate, func(f *FlowState, now time.Time) {})
}

// CompleteFlow closes the active flow with the given terminal status. Every
// still-open duration including the total is ended. Failures capture
// best-effort disk space and the normalized engine error; a successful
// completion advances the last-successful-update clock.
func (c *Controller) CompleteFlow(status CompletionStatus, engineErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return fmt.Errorf("no update flow in flight")
	}

	now := c.clock()
	if status.Outcome == OutcomeFailure {
		c.captureFailureDetail(engineErr)
	}
	c.completeLocked(status, now)
	return nil
}

// CancelFlow closes the active flow as cancelled for the given reason.
func (c *Controller) CancelFlow(reason CancellationReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return fmt.Errorf("no update flow in flight")
	}
	c.completeLocked(Cancelled(reason), c.clock())
	return nil
}

// HandleAppTermination resolves an in-flight flow when the app is quitting.
// Termination is ambiguous: only the late steps, where the install is
// already staged or the user asked for the relaunch, count as success.
func (c *Controller) HandleAppTermination() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return
	}

	now := c.clock()
	switch c.active.LastKnownStep {
	case StepExtractionCompleted:
		c.completeLocked(Success(ReasonInstallingOnQuit), now)
	case StepRestartingToUpdate:
		c.completeLocked(Success(ReasonRestartingUpdate), now)
	default:
		c.completeLocked(Cancelled(CancelAppQuit), now)
	}
}

// CleanupAbandonedFlows closes out flows recorded as started by a previous
// process that never completed, typically after a crash. Run once at
// process start.
func (c *Controller) CleanupAbandonedFlows() error {
	open, err := c.recorder.OpenFlows()
	if err != nil {
		return fmt.Errorf("failed to enumerate open flows: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	for i := range open {
		flow := open[i]
		if c.active != nil && flow.ID == c.active.ID {
			continue
		}
		flow.closeOpenDurations(now)
		if err := c.recorder.Complete(flow, Unknown(ReasonAbandoned)); err != nil {
			c.logWarn("Failed to complete abandoned flow", "id", flow.ID, "error", err)
			continue
		}
		c.logInfo("Closed abandoned update flow", "id", flow.ID, "step", flow.LastKnownStep)
	}
	return nil
}

// mutate applies a transition to the active flow under the lock and emits an
// update record. Transitions arriving with no flow in flight are dropped;
// engine callbacks can straggle after completion.
func (c *Controller) mutate(step Step, apply func(f *FlowState, now time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		c.logDebug("Dropping update event with no flow in flight", "step", step)
		return
	}

	now := c.clock()
	apply(c.active, now)
	c.active.advanceStep(step)

	if err := c.recorder.Update(c.active.clone()); err != nil {
		c.logWarn("Failed to record flow update", "id", c.active.ID, "error", err)
	}
}

// completeLocked finalizes the active flow. Callers hold c.mu.
func (c *Controller) completeLocked(status CompletionStatus, now time.Time) {
	flow := c.active
	flow.closeOpenDurations(now)
	if status.Outcome == OutcomeCancelled {
		flow.CancellationReason = CancellationReason(status.Reason)
	}

	if err := c.recorder.Complete(flow.clone(), status); err != nil {
		c.logWarn("Failed to record flow completion", "id", flow.ID, "error", err)
	}

	if status.Outcome == OutcomeSuccess && c.lastUpdate != nil {
		if err := c.lastUpdate.SetLastSuccessfulUpdate(now); err != nil {
			c.logWarn("Failed to persist last successful update time", "error", err)
		}
	}

	c.logInfo("Update flow completed",
		"id", flow.ID,
		"outcome", status.Outcome,
		"reason", status.Reason,
		"step", flow.LastKnownStep,
	)
	c.active = nil
}

// captureFailureDetail fills in the diagnostic fields for a failure. Disk
// space is best effort; a stat error just leaves the field unset. Callers
// hold c.mu.
func (c *Controller) captureFailureDetail(engineErr error) {
	if free, err := c.diskSpace(); err == nil {
		c.active.DiskSpaceBytes = &free
	} else {
		c.logDebug("Could not read free disk space", "error", err)
	}

	info := &ErrorInfo{Reason: "unknown"}
	if engineErr != nil {
		info.Reason = NormalizeErrorMessage(engineErr.Error())
		info.Message = engineErr.Error()
	}
	c.active.ErrorInfo = info
}

func (c *Controller) logInfo(msg string, context ...interface{}) {
	if c.log != nil {
		c.log.Info(msg, context...)
	}
}

func (c *Controller) logWarn(msg string, context ...interface{}) {
	if c.log != nil {
		c.log.Warn(msg, context...)
	}
}

func (c *Controller) logDebug(msg string, context ...interface{}) {
	if c.log != nil {
		c.log.Debug(msg, context...)
	}
}
