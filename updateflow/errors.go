package updateflow

import "strings"

// knownErrorPhrases maps fragments of raw engine error text to the stable
// reason strings reported in telemetry. Matching is case-insensitive
// substring, longest phrase first, so more specific phrases win. The reason
// values are a shipped contract; add entries, never rewrite them.
var knownErrorPhrases = []struct {
	phrase string
	reason string
}{
	{"guided package installer failed to launch", "Guided package installer failed to launch"},
	{"failed to verify update signature", "Failed to verify update signature"},
	{"update archive is damaged", "Update archive is damaged"},
	{"extraction of the update archive failed", "Extraction of the update archive failed"},
	{"not enough free disk space", "Not enough free disk space"},
	{"an error occurred while downloading the update", "An error occurred while downloading the update"},
	{"connection appears to be offline", "Connection appears to be offline"},
	{"update check timed out", "Update check timed out"},
	{"could not connect to the update server", "Could not connect to the update server"},
}

// NormalizeErrorMessage maps a raw engine error string onto one of a small
// set of stable reason buckets. Unrecognized or empty input maps to
// "unknown". The function is total: it never fails.
func NormalizeErrorMessage(raw string) string {
	msg := strings.ToLower(strings.TrimSpace(raw))
	if msg == "" {
		return "unknown"
	}

	best, bestLen := "", 0
	for _, entry := range knownErrorPhrases {
		if strings.Contains(msg, entry.phrase) && len(entry.phrase) > bestLen {
			best, bestLen = entry.reason, len(entry.phrase)
		}
	}
	if best != "" {
		return best
	}
	return "unknown"
}
