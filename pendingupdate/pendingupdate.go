// Package pendingupdate records what the app looked like just before it
// relaunched to install an update, and verifies after the relaunch that the
// install actually happened.
package pendingupdate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"meridian/updater/kvstore"
	"meridian/updater/updateflow"
)

const metadataKey = "pending_update"

// Metadata is the pre-relaunch snapshot consulted once after relaunch.
type Metadata struct {
	SourceVersion       string                         `json:"source_version"`
	SourceBuild         string                         `json:"source_build"`
	InitiationType      updateflow.InitiationType      `json:"initiation_type"`
	UpdateConfiguration updateflow.UpdateConfiguration `json:"update_configuration"`
}

// Save records the snapshot before the engine relaunches the app.
func Save(store kvstore.Store, m Metadata) error {
	if err := store.SetValue(metadataKey, m); err != nil {
		return fmt.Errorf("failed to save pending update metadata: %w", err)
	}
	return nil
}

// Take reads the snapshot and clears it. The clear happens unconditionally,
// even when decoding fails or no snapshot exists: stale metadata must never
// be consulted twice.
func Take(store kvstore.Store) (Metadata, bool, error) {
	var m Metadata
	err := store.GetValue(metadataKey, &m)

	if deleteErr := store.DeleteValue(metadataKey); deleteErr != nil {
		return Metadata{}, false, fmt.Errorf("failed to clear pending update metadata: %w", deleteErr)
	}

	if errors.Is(err, kvstore.ErrNotFound) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("failed to read pending update metadata: %w", err)
	}
	return m, true, nil
}

// Result describes what the post-relaunch validation concluded.
type Result string

const (
	// ResultUpdated means the app came back newer than the recorded source
	// version: the pending update was installed.
	ResultUpdated Result = "updated"
	// ResultUnchanged means the app relaunched on the same (or an
	// unparseable) version: the install did not take effect.
	ResultUnchanged Result = "unchanged"
	// ResultNone means no pending update was recorded.
	ResultNone Result = "none"
)

// Validate consults the pending-update snapshot once and compares the
// recorded source version with the version now running. The snapshot is
// cleared regardless of the outcome.
func Validate(store kvstore.Store, currentVersion string) (Result, Metadata, error) {
	m, found, err := Take(store)
	if err != nil {
		return ResultNone, Metadata{}, err
	}
	if !found {
		return ResultNone, Metadata{}, nil
	}

	source, err := semver.NewVersion(strings.TrimPrefix(m.SourceVersion, "v"))
	if err != nil {
		return ResultUnchanged, m, nil
	}
	current, err := semver.NewVersion(strings.TrimPrefix(currentVersion, "v"))
	if err != nil {
		return ResultUnchanged, m, nil
	}

	if current.GreaterThan(source) {
		return ResultUpdated, m, nil
	}
	return ResultUnchanged, m, nil
}
