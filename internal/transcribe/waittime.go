package transcribe

// timeout buckets, duration upper bound (inclusive) to polling budget,
// both in seconds. Processing time on the remote service grows with input
// length; discrete steps keep short clips on a tight budget without
// starving hour-long recordings.
var timeoutBuckets = []struct {
	maxDuration float64
	timeout     int
}{
	{300, 90},
	{720, 180},
	{960, 240},
	{1800, 480},
	{3600, 780},
}

// fallbackTimeout applies above the largest bucket.
const fallbackTimeout = 1140

// EstimateTimeout maps an audio duration in seconds to the polling budget
// in seconds. Pure and total: every input lands in exactly one bucket.
func EstimateTimeout(durationSeconds float64) int {
	for _, b := range timeoutBuckets {
		if durationSeconds <= b.maxDuration {
			return b.timeout
		}
	}
	return fallbackTimeout
}
