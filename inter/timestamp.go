package inter

import (
	"time"
)

// Timestamp is a Unix timestamp in nanoseconds. It is also used for
// durations (block intervals, transaction lifetimes), which keeps all
// consensus time arithmetic in one integer domain.
type Timestamp uint64

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixNano())
}

// Time converts the Timestamp to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t)/int64(time.Second), int64(t)%int64(time.Second))
}

func (t Timestamp) String() string {
	return t.Time().UTC().Format(time.RFC3339Nano)
}
