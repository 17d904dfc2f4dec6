package engine

import (
	"strings"
	"time"
)

// Policy is the closed variant of conflict resolution strategies, carried
// as an enum-shaped value in configuration rather than a free-form string.
type Policy string

const (
	PolicyLatestTimestamp Policy = "latest_timestamp"
	PolicyCloudWins       Policy = "cloud_wins"
	PolicyLocalWins       Policy = "local_wins"
	PolicyManual          Policy = "manual"
)

// ValidPolicies lists every accepted policy name, for config validation.
var ValidPolicies = []Policy{PolicyLatestTimestamp, PolicyCloudWins, PolicyLocalWins, PolicyManual}

// IsValid reports whether p is one of the four known policies.
func (p Policy) IsValid() bool {
	for _, v := range ValidPolicies {
		if p == v {
			return true
		}
	}
	return false
}

// Decision is the result of applying a conflict policy: a direction to
// follow, or DirectionConflict to signal that manual resolution is required.
type Decision struct {
	Direction  Direction
	Resolution string // audit label, e.g. "cloud_wins_by_timestamp"
}

// timeLayouts are tried in order when parsing a document's modified field,
// matching the formats the original Frappe client produced.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	time.RFC3339,
}

// ParseModified parses a document's modified timestamp, returning the zero
// time and false if every known layout fails.
func ParseModified(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveConflict applies policy to a divergence between cloud and local,
// given their modified timestamps. A ConflictRecord is always warranted by
// the caller regardless of what Decision comes back; this function only
// picks the direction.
func ResolveConflict(policy Policy, cloudModified, localModified string) Decision {
	switch policy {
	case PolicyCloudWins:
		return Decision{Direction: DirectionCloudToLocal, Resolution: "cloud_wins"}
	case PolicyLocalWins:
		return Decision{Direction: DirectionLocalToCloud, Resolution: "local_wins"}
	case PolicyManual:
		return Decision{Direction: DirectionConflict, Resolution: ""}
	case PolicyLatestTimestamp:
		cloudTime, cloudOK := ParseModified(cloudModified)
		localTime, localOK := ParseModified(localModified)
		if !cloudOK || !localOK {
			return Decision{Direction: DirectionConflict, Resolution: ""}
		}
		if localTime.After(cloudTime) {
			return Decision{Direction: DirectionLocalToCloud, Resolution: "local_wins_by_timestamp"}
		}
		// Ties go to the cloud side.
		return Decision{Direction: DirectionCloudToLocal, Resolution: "cloud_wins_by_timestamp"}
	default:
		return Decision{Direction: DirectionConflict, Resolution: ""}
	}
}
