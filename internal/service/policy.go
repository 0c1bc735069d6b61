package service

import "time"

const (
	// overdue fine, currency units per day
	finePerDay = 0.5

	// renewal extends the current due date, not today
	renewDays = 14

	// return-time credit deduction tiers
	shortOverdueLimit   = 7
	shortOverduePenalty = 2
	longOverduePenalty  = 5

	// sweep: open records this long past due get an extra flat penalty
	sweepOverdueDays   = 30
	sweepPenaltyPoints = 5
)

// Policy carries the knobs that were ambiguous or divergent in the old
// desktop variants and are therefore explicit configuration here.
type Policy struct {
	// CombinePenalties keeps the historical behavior of applying the
	// sweep penalty and the full return-time penalty to the same lateness
	// window. When false (default), a sweep penalty already applied to
	// the record reduces the return-time deduction.
	CombinePenalties bool `envconfig:"POLICY_COMBINE_PENALTIES" default:"false"`

	SweepInterval time.Duration `envconfig:"POLICY_SWEEP_INTERVAL" default:"24h"`
	SweepTimeout  time.Duration `envconfig:"POLICY_SWEEP_TIMEOUT" default:"5m"`
}

// daysOverdue counts whole calendar days between due date and return,
// ignoring time of day. Non-positive means returned on time.
func daysOverdue(due, returned time.Time) int {
	due = truncateDay(due)
	returned = truncateDay(returned)
	return int(returned.Sub(due).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func overduePenalty(days int) int {
	switch {
	case days <= 0:
		return 0
	case days <= shortOverdueLimit:
		return shortOverduePenalty
	default:
		return longOverduePenalty
	}
}
