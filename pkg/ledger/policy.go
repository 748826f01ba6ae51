package ledger

import (
	"fmt"
	"strings"
)

// TimestampPolicy decides what Append does with a timestamp earlier than the tail's.
type TimestampPolicy string

const (
	// TimestampReject fails the append with ErrTemporalOrdering.
	TimestampReject TimestampPolicy = "reject"
	// TimestampClamp raises the timestamp to the tail's.
	TimestampClamp TimestampPolicy = "clamp"
	// TimestampAllow keeps the supplied timestamp.
	TimestampAllow TimestampPolicy = "allow"
)

// ParseTimestampPolicy accepts reject, clamp or allow (case-insensitive).
func ParseTimestampPolicy(s string) (TimestampPolicy, error) {
	switch p := TimestampPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case TimestampReject, TimestampClamp, TimestampAllow:
		return p, nil
	case "":
		return TimestampReject, nil
	default:
		return "", fmt.Errorf("unknown timestamp policy %q", s)
	}
}
