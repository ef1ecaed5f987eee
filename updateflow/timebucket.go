package updateflow

import "time"

// Bucket is a coarse classification of elapsed time since the last
// successful update. Reporting a bucket instead of a raw duration keeps the
// telemetry privacy-preserving. The labels are part of the telemetry
// contract and must not change once shipped.
type Bucket string

const (
	BucketUnder30Min Bucket = "<30m"
	BucketUnder2h    Bucket = "<2h"
	BucketUnder6h    Bucket = "<6h"
	BucketUnder1d    Bucket = "<1d"
	BucketUnder2d    Bucket = "<2d"
	BucketUnder1w    Bucket = "<1w"
	BucketUnder1M    Bucket = "<1M"
	BucketOver1M     Bucket = ">=1M"
)

// A month is approximated as 30 days for bucketing purposes.
const bucketMonth = 30 * 24 * time.Hour

var bucketBoundaries = []struct {
	upper  time.Duration
	bucket Bucket
}{
	{30 * time.Minute, BucketUnder30Min},
	{2 * time.Hour, BucketUnder2h},
	{6 * time.Hour, BucketUnder6h},
	{24 * time.Hour, BucketUnder1d},
	{48 * time.Hour, BucketUnder2d},
	{7 * 24 * time.Hour, BucketUnder1w},
	{bucketMonth, BucketUnder1M},
}

// BucketForDuration classifies an elapsed duration. Boundaries are half-open:
// an elapsed time equal to a boundary lands in the next bucket up.
func BucketForDuration(elapsed time.Duration) Bucket {
	for _, b := range bucketBoundaries {
		if elapsed < b.upper {
			return b.bucket
		}
	}
	return BucketOver1M
}

// BucketSince classifies the time elapsed between two instants. A zero
// `until` defaults to now.
func BucketSince(since, until time.Time) Bucket {
	if until.IsZero() {
		until = time.Now()
	}
	return BucketForDuration(until.Sub(since))
}
