package domain

import ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"

// Mode is the charge path an admitted call will take on commit.
type Mode string

const (
	ModeFree    Mode = "free"
	ModePaid    Mode = "paid"
	ModeBlocked Mode = "blocked"
)

func (m Mode) Allowed() bool {
	return m == ModeFree || m == ModePaid
}

// Admission is the read-only decision taken before a metered call runs.
// Nothing is reserved: two concurrent admissions may both see the last
// credit.
type Admission struct {
	Mode             Mode   `json:"mode"`
	Day              string `json:"day"`
	FreeUsedToday    int64  `json:"free_used_today"`
	FreeDailyLimit   int64  `json:"free_daily_limit"`
	RemainingCredits int64  `json:"remaining_credits"`
}

func (a Admission) Allowed() bool {
	return a.Mode.Allowed()
}

func (a Admission) FreeRemaining() int64 {
	if a.FreeUsedToday >= a.FreeDailyLimit {
		return 0
	}
	return a.FreeDailyLimit - a.FreeUsedToday
}

// Status is the caller's usage view: today's free allowance and the
// credit balance.
type Status struct {
	Admission
	FreeRemaining int64                     `json:"free_remaining"`
	Credits       *ledgerdomain.UserCredits `json:"credits"`
}
