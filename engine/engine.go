// Package engine defines the contract with the external updater engine —
// the black box that downloads, verifies, and installs updates — and
// bridges its progress events into the flow lifecycle controller.
package engine

import "context"

// Engine is the surface of the external updater machinery this process
// drives. Checks run asynchronously; progress comes back through a
// Delegate.
type Engine interface {
	// CanCheckForUpdates reports whether the engine is able to start a
	// check right now (not already mid-session, configuration valid).
	CanCheckForUpdates() bool

	// CheckForUpdates starts an asynchronous update check.
	CheckForUpdates(ctx context.Context) error

	// CancelUpdate aborts any in-progress download or installation.
	CancelUpdate()
}

// Delegate receives progress events from the engine. Implementations must
// tolerate events arriving on arbitrary goroutines.
type Delegate interface {
	// DidFindUpdate fires when a check found an applicable update.
	DidFindUpdate(version, build string, critical bool)

	// DidNotFindUpdate fires when a check completed and the app is already
	// current. This is a normal outcome, not an error.
	DidNotFindUpdate()

	DidStartDownload()
	DidFinishDownload()
	DidStartExtraction()
	DidFinishExtraction()

	// WillRelaunchApplication fires just before the engine restarts the app
	// to install a staged update.
	WillRelaunchApplication()

	// DidFailWithError fires when the update cycle ends in a terminal
	// engine error.
	DidFailWithError(err error)
}
