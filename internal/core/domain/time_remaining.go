package domain

import (
	"strconv"
	"strings"
	"time"
)

// TimeUnit is the unit of an active countdown.
type TimeUnit string

const (
	UnitSeconds TimeUnit = "SECONDS"
	UnitMinutes TimeUnit = "MINUTES"
	UnitHours   TimeUnit = "HOURS"
	UnitDays    TimeUnit = "DAYS"
)

// TimeRemaining is either expired or an active count of whole units.
type TimeRemaining struct {
	Expired bool     `json:"expired"`
	Value   int64    `json:"value"`
	Unit    TimeUnit `json:"unit,omitempty"`
}

// CalculateTimeRemaining buckets expiresAt-now into the largest unit with a
// non-zero whole count. Every count is floored. A positive difference below
// one second reports zero seconds.
func CalculateTimeRemaining(expiresAt, now time.Time) TimeRemaining {
	diff := expiresAt.UnixMilli() - now.UnixMilli()
	if diff <= 0 {
		return TimeRemaining{Expired: true}
	}

	seconds := diff / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return TimeRemaining{Value: days, Unit: UnitDays}
	case hours > 0:
		return TimeRemaining{Value: hours, Unit: UnitHours}
	case minutes > 0:
		return TimeRemaining{Value: minutes, Unit: UnitMinutes}
	default:
		return TimeRemaining{Value: seconds, Unit: UnitSeconds}
	}
}

// String renders the countdown in English: "Expired", "1 minute", "45 seconds".
func (r TimeRemaining) String() string {
	if r.Expired {
		return "Expired"
	}
	unit := strings.ToLower(strings.TrimSuffix(string(r.Unit), "S"))
	if r.Value != 1 {
		unit += "s"
	}
	return strconv.FormatInt(r.Value, 10) + " " + unit
}
