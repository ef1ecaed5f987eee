package updateflow

import "testing"

func TestNormalizeErrorMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", "", "unknown"},
		{"whitespace only", "   \t ", "unknown"},
		{"unrecognized", "something exploded in a novel way", "unknown"},
		{
			"exact phrase",
			"not enough free disk space",
			"Not enough free disk space",
		},
		{
			"case insensitive",
			"NOT ENOUGH FREE DISK SPACE",
			"Not enough free disk space",
		},
		{
			"phrase embedded in engine noise",
			"Error Domain=EngineError Code=4001 \"An error occurred while downloading the update.\" recovery=retry",
			"An error occurred while downloading the update",
		},
		{
			"signature failure",
			"failed to verify update signature: digest mismatch",
			"Failed to verify update signature",
		},
		{
			"installer launch",
			"guided package installer failed to launch (exit 71)",
			"Guided package installer failed to launch",
		},
		{
			"offline",
			"the network connection appears to be offline",
			"Connection appears to be offline",
		},
		{
			"timeout",
			"update check timed out after 30s",
			"Update check timed out",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeErrorMessage(tc.raw); got != tc.want {
				t.Errorf("NormalizeErrorMessage(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
