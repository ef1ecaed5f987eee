package updateflow

import "strconv"

// Telemetry key namespace. Downstream analytics match on these verbatim.
const (
	featureName = "app_update_flow"

	keyFeatureName = "feature.name"
	extPrefix      = "feature.data.ext."

	keyFromVersion         = extPrefix + "from_version"
	keyFromBuild           = extPrefix + "from_build"
	keyToVersion           = extPrefix + "to_version"
	keyToBuild             = extPrefix + "to_build"
	keyUpdateType          = extPrefix + "update_type"
	keyInitiationType      = extPrefix + "initiation_type"
	keyUpdateConfiguration = extPrefix + "update_configuration"
	keyLastKnownStep       = extPrefix + "last_known_step"
	keyIsInternalUser      = extPrefix + "is_internal_user"
	keyOSVersion           = extPrefix + "os_version"
	keyTimeSinceLastUpdate = extPrefix + "time_since_last_update"
	keyCancellationReason  = extPrefix + "cancellation_reason"
	keyDiskSpaceRemaining  = extPrefix + "disk_space_remaining_bytes"
	keyErrorReason         = extPrefix + "error_reason"
	keyUpdateCheckDuration = extPrefix + "update_check_duration_ms"
	keyDownloadDuration    = extPrefix + "download_duration_ms"
	keyExtractionDuration  = extPrefix + "extraction_duration_ms"
	keyTotalDuration       = extPrefix + "total_duration_ms"
)

// Parameters projects a completed flow onto the flat string map the
// telemetry transport accepts. Required fields are always present; optional
// fields appear only when set, never as empty placeholders. Durations are
// whole milliseconds, truncated.
func Parameters(f FlowState) map[string]string {
	params := map[string]string{
		keyFeatureName:         featureName,
		keyFromVersion:         f.FromVersion,
		keyFromBuild:           f.FromBuild,
		keyInitiationType:      string(f.InitiationType),
		keyUpdateConfiguration: string(f.UpdateConfiguration),
		keyIsInternalUser:      strconv.FormatBool(f.IsInternalUser),
		keyOSVersion:           f.OSVersion,
	}

	if f.ToVersion != "" {
		params[keyToVersion] = f.ToVersion
	}
	if f.ToBuild != "" {
		params[keyToBuild] = f.ToBuild
	}
	if f.UpdateType != "" {
		params[keyUpdateType] = string(f.UpdateType)
	}
	if f.LastKnownStep != "" {
		params[keyLastKnownStep] = string(f.LastKnownStep)
	}
	if f.TimeSinceLastUpdate != "" {
		params[keyTimeSinceLastUpdate] = string(f.TimeSinceLastUpdate)
	}
	if f.CancellationReason != "" {
		params[keyCancellationReason] = string(f.CancellationReason)
	}
	if f.DiskSpaceBytes != nil {
		params[keyDiskSpaceRemaining] = strconv.FormatInt(*f.DiskSpaceBytes, 10)
	}
	if f.ErrorInfo != nil && f.ErrorInfo.Reason != "" {
		params[keyErrorReason] = f.ErrorInfo.Reason
	}

	putDuration(params, keyUpdateCheckDuration, f.UpdateCheckDuration)
	putDuration(params, keyDownloadDuration, f.DownloadDuration)
	putDuration(params, keyExtractionDuration, f.ExtractionDuration)
	putDuration(params, keyTotalDuration, f.TotalDuration)

	return params
}

func putDuration(params map[string]string, key string, iv *Interval) {
	if iv == nil || iv.End.IsZero() {
		return
	}
	params[key] = strconv.FormatInt(iv.Millis(), 10)
}
