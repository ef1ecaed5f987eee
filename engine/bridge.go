package engine

import (
	"context"
	"fmt"
	"sync"

	"meridian/updater/checkgate"
	"meridian/updater/updateflow"
)

// Logger is the subset of the logger package the bridge needs.
type Logger interface {
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

// Bridge connects the engine to the flow controller. It initiates checks
// through the rate-limit gate and translates delegate events into flow
// transitions. It is the Delegate the engine should be configured with.
type Bridge struct {
	controller *updateflow.Controller
	gate       *checkgate.Gate
	engine     Engine
	log        Logger

	mu           sync.Mutex
	relaunchHook func()
}

// NewBridge wires a controller, gate, and engine together.
func NewBridge(controller *updateflow.Controller, gate *checkgate.Gate, eng Engine, log Logger) *Bridge {
	return &Bridge{
		controller: controller,
		gate:       gate,
		engine:     eng,
		log:        log,
	}
}

// StartBackgroundCheck runs a timer-initiated check if the gate and engine
// allow one. It reports whether a check was actually started.
func (b *Bridge) StartBackgroundCheck(ctx context.Context) bool {
	available := b.engine.CanCheckForUpdates()
	if !b.gate.CanStartBackgroundCheck(available) {
		b.logDebug("Skipping background update check", "engine_available", available)
		return false
	}
	if err := b.startCheck(ctx, updateflow.InitiationAutomatic); err != nil {
		b.logWarn("Background update check failed to start", "error", err)
		return false
	}
	return true
}

// StartUserCheck runs an explicitly requested check. Rate limiting does not
// apply; only the engine's availability can refuse it.
func (b *Bridge) StartUserCheck(ctx context.Context) error {
	available := b.engine.CanCheckForUpdates()
	if !b.gate.CanStartUserCheck(&available) {
		return fmt.Errorf("engine cannot check for updates right now")
	}
	return b.startCheck(ctx, updateflow.InitiationManual)
}

func (b *Bridge) startCheck(ctx context.Context, initiation updateflow.InitiationType) error {
	b.controller.StartFlow(initiation)
	b.gate.RecordCheck()

	if err := b.engine.CheckForUpdates(ctx); err != nil {
		if completeErr := b.controller.CompleteFlow(updateflow.Failure(), err); completeErr != nil {
			b.logWarn("Could not complete flow after check error", "error", completeErr)
		}
		return fmt.Errorf("engine check failed: %w", err)
	}
	return nil
}

// Cancel aborts the in-progress update for the given reason.
func (b *Bridge) Cancel(reason updateflow.CancellationReason) {
	b.engine.CancelUpdate()
	if err := b.controller.CancelFlow(reason); err != nil {
		b.logDebug("Cancel with no flow in flight", "reason", reason)
	}
}

// Delegate implementation.

func (b *Bridge) DidFindUpdate(version, build string, critical bool) {
	b.controller.DidFindUpdate(version, build, critical)
}

func (b *Bridge) DidNotFindUpdate() {
	if err := b.controller.CompleteFlow(updateflow.Success(updateflow.ReasonNoUpdateAvailable), nil); err != nil {
		b.logDebug("No-update event with no flow in flight")
	}
}

func (b *Bridge) DidStartDownload() {
	b.controller.DidStartDownload()
}

func (b *Bridge) DidFinishDownload() {
	b.controller.DidCompleteDownload()
}

func (b *Bridge) DidStartExtraction() {
	b.controller.DidStartExtraction()
}

func (b *Bridge) DidFinishExtraction() {
	b.controller.DidCompleteExtraction()
}

// SetRelaunchHook registers a callback invoked just before the app
// relaunches to install, after the flow has advanced to the restarting
// step. Used to persist the pre-relaunch snapshot.
func (b *Bridge) SetRelaunchHook(hook func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relaunchHook = hook
}

func (b *Bridge) WillRelaunchApplication() {
	b.controller.DidInitiateRestart()

	b.mu.Lock()
	hook := b.relaunchHook
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (b *Bridge) DidFailWithError(err error) {
	if completeErr := b.controller.CompleteFlow(updateflow.Failure(), err); completeErr != nil {
		b.logDebug("Failure event with no flow in flight", "error", err)
	}
}

func (b *Bridge) logWarn(msg string, context ...interface{}) {
	if b.log != nil {
		b.log.Warn(msg, context...)
	}
}

func (b *Bridge) logDebug(msg string, context ...interface{}) {
	if b.log != nil {
		b.log.Debug(msg, context...)
	}
}
