// Package updateflow tracks the lifecycle of a single application update
// attempt, from the initial availability check through install/restart or
// cancellation, and projects completed attempts into flat telemetry records.
package updateflow

import (
	"time"

	"github.com/google/uuid"
)

// Step enumerates how far an update attempt has progressed. Steps only ever
// move forward; the raw values are part of the telemetry contract and must
// not change once shipped.
type Step string

const (
	StepCheckStarted        Step = "check_started"
	StepUpdateFound         Step = "update_found"
	StepDownloadStarted     Step = "download_started"
	StepDownloadCompleted   Step = "download_completed"
	StepExtractionStarted   Step = "extraction_started"
	StepExtractionCompleted Step = "extraction_completed"
	StepRestartingToUpdate  Step = "restarting_to_update"
)

var stepRank = map[Step]int{
	StepCheckStarted:        0,
	StepUpdateFound:         1,
	StepDownloadStarted:     2,
	StepDownloadCompleted:   3,
	StepExtractionStarted:   4,
	StepExtractionCompleted: 5,
	StepRestartingToUpdate:  6,
}

// After reports whether s is strictly later in the update sequence than other.
func (s Step) After(other Step) bool {
	return stepRank[s] > stepRank[other]
}

// UpdateType distinguishes routine updates from critical ones the app should
// install as soon as possible.
type UpdateType string

const (
	UpdateTypeRegular  UpdateType = "regular"
	UpdateTypeCritical UpdateType = "critical"
)

// InitiationType records what triggered the check.
type InitiationType string

const (
	InitiationAutomatic InitiationType = "automatic"
	InitiationManual    InitiationType = "manual"
)

// UpdateConfiguration records whether the user had automatic installation of
// updates enabled when the flow started.
type UpdateConfiguration string

const (
	ConfigurationAutomatic UpdateConfiguration = "automatic"
	ConfigurationManual    UpdateConfiguration = "manual"
)

// CancellationReason explains why a flow ended without installing anything.
type CancellationReason string

const (
	CancelAppQuit         CancellationReason = "app_quit"
	CancelSettingsChanged CancellationReason = "settings_changed"
	CancelBuildExpired    CancellationReason = "build_expired"
	CancelNewCheckStarted CancellationReason = "new_check_started"
)

// Outcome is the terminal classification of a flow.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeUnknown   Outcome = "unknown"
)

// Reasons attached to success and unknown outcomes.
const (
	ReasonNoUpdateAvailable = "no_update_available"
	ReasonInstallingOnQuit  = "installing_on_quit"
	ReasonRestartingUpdate  = "restarting_to_update"
	ReasonIncomplete        = "incomplete"
	ReasonAbandoned         = "abandoned"
)

// CompletionStatus pairs an outcome with its optional reason. For cancelled
// flows Reason holds the CancellationReason raw value.
type CompletionStatus struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

func Success(reason string) CompletionStatus {
	return CompletionStatus{Outcome: OutcomeSuccess, Reason: reason}
}

func Failure() CompletionStatus {
	return CompletionStatus{Outcome: OutcomeFailure}
}

func Cancelled(reason CancellationReason) CompletionStatus {
	return CompletionStatus{Outcome: OutcomeCancelled, Reason: string(reason)}
}

func Unknown(reason string) CompletionStatus {
	return CompletionStatus{Outcome: OutcomeUnknown, Reason: reason}
}

// Interval is a measured span of time. End stays zero while the interval is
// open; Close is a no-op once it has ended.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// OpenInterval starts a new interval at the given instant.
func OpenInterval(now time.Time) *Interval {
	return &Interval{Start: now}
}

// Open reports whether the interval has not been closed yet.
func (iv *Interval) Open() bool {
	return iv != nil && iv.End.IsZero()
}

// Close ends the interval at the given instant if it is still open.
func (iv *Interval) Close(now time.Time) {
	if iv.Open() {
		iv.End = now
	}
}

// Millis returns the elapsed time in whole milliseconds, truncated. Open
// intervals report zero.
func (iv *Interval) Millis() int64 {
	if iv == nil || iv.End.IsZero() {
		return 0
	}
	return iv.End.Sub(iv.Start).Milliseconds()
}

// ErrorInfo carries the normalized detail of an engine-reported failure.
type ErrorInfo struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// FlowState is the record of one update attempt. Identity and environment
// fields are fixed at creation; the remaining fields are filled in as the
// engine reports progress.
type FlowState struct {
	ID string `json:"id"`

	FromVersion string `json:"from_version"`
	FromBuild   string `json:"from_build"`
	ToVersion   string `json:"to_version,omitempty"`
	ToBuild     string `json:"to_build,omitempty"`

	UpdateType          UpdateType          `json:"update_type,omitempty"`
	InitiationType      InitiationType      `json:"initiation_type"`
	UpdateConfiguration UpdateConfiguration `json:"update_configuration"`
	LastKnownStep       Step                `json:"last_known_step"`

	IsInternalUser bool   `json:"is_internal_user"`
	OSVersion      string `json:"os_version"`

	TimeSinceLastUpdate Bucket `json:"time_since_last_update,omitempty"`

	CancellationReason CancellationReason `json:"cancellation_reason,omitempty"`
	DiskSpaceBytes     *int64             `json:"disk_space_remaining_bytes,omitempty"`
	ErrorInfo          *ErrorInfo         `json:"error_info,omitempty"`

	UpdateCheckDuration *Interval `json:"update_check_duration,omitempty"`
	DownloadDuration    *Interval `json:"download_duration,omitempty"`
	ExtractionDuration  *Interval `json:"extraction_duration,omitempty"`
	TotalDuration       *Interval `json:"total_duration,omitempty"`
}

// Environment is a snapshot of the app-level facts captured when a flow
// starts.
type Environment struct {
	Version      string
	Build        string
	OSVersion    string
	InternalUser bool
	AutoUpdates  bool
}

func newFlowState(env Environment, initiation InitiationType, now time.Time) *FlowState {
	configuration := ConfigurationManual
	if env.AutoUpdates {
		configuration = ConfigurationAutomatic
	}

	return &FlowState{
		ID:                  uuid.NewString(),
		FromVersion:         env.Version,
		FromBuild:           env.Build,
		InitiationType:      initiation,
		UpdateConfiguration: configuration,
		LastKnownStep:       StepCheckStarted,
		IsInternalUser:      env.InternalUser,
		OSVersion:           env.OSVersion,
		TotalDuration:       OpenInterval(now),
		UpdateCheckDuration: OpenInterval(now),
	}
}

// advanceStep moves the step forward; it never regresses.
func (f *FlowState) advanceStep(step Step) {
	if step.After(f.LastKnownStep) {
		f.LastKnownStep = step
	}
}

// closeOpenDurations ends every interval that is still running, including the
// total. Called exactly once, at completion.
func (f *FlowState) closeOpenDurations(now time.Time) {
	f.UpdateCheckDuration.Close(now)
	f.DownloadDuration.Close(now)
	f.ExtractionDuration.Close(now)
	f.TotalDuration.Close(now)
}

// clone returns a copy safe to hand to collaborators while the controller
// keeps mutating the original.
func (f *FlowState) clone() FlowState {
	out := *f
	if f.DiskSpaceBytes != nil {
		v := *f.DiskSpaceBytes
		out.DiskSpaceBytes = &v
	}
	if f.ErrorInfo != nil {
		v := *f.ErrorInfo
		out.ErrorInfo = &v
	}
	for _, pair := range []struct {
		src *Interval
		dst **Interval
	}{
		{f.UpdateCheckDuration, &out.UpdateCheckDuration},
		{f.DownloadDuration, &out.DownloadDuration},
		{f.ExtractionDuration, &out.ExtractionDuration},
		{f.TotalDuration, &out.TotalDuration},
	} {
		if pair.src != nil {
			v := *pair.src
			*pair.dst = &v
		}
	}
	return out
}
