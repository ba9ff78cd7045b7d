package logic

// JoinPhase is the state of the cold-boot join sequence.
type JoinPhase string

const (
	PhaseColdBootPending    JoinPhase = "COLD_BOOT_PENDING"
	PhaseJoining            JoinPhase = "JOINING"
	PhaseJoined             JoinPhase = "JOINED"
	PhaseJoinFailedRetrying JoinPhase = "JOIN_FAILED_RETRYING"
	PhaseJoinAbandoned      JoinPhase = "JOIN_ABANDONED"
)

// DefaultJoinAttempts is the cold-boot join budget.
const DefaultJoinAttempts = 3

// RetryAction tells the caller what the retry task must do.
type RetryAction int

const (
	// RetryNone means the cold-boot sequence is over; nothing to do.
	RetryNone RetryAction = iota
	// RetryJoin means another join must be requested.
	RetryJoin
	// RetryFinish means the budget is spent: clear cold boot, enable user
	// input and run the post-join hook. Returned exactly once.
	RetryFinish
)

func (a RetryAction) String() string {
	switch a {
	case RetryJoin:
		return "JOIN"
	case RetryFinish:
		return "FINISH"
	}
	return "NONE"
}

// JoinController tracks the join attempt budget after a cold boot.
//
// Decrementing (OnResult) and the exhaustion check (Retry) are separate steps:
// the result callback only books the outcome, the retry task scheduled after
// the indicator pattern completes decides what happens next.
type JoinController struct {
	coldBoot bool
	attempts uint8
	joined   bool
	phase    JoinPhase
}

// NewJoinController returns a controller in ColdBootPending(budget).
func NewJoinController(budget uint8) *JoinController {
	return &JoinController{
		coldBoot: true,
		attempts: budget,
		phase:    PhaseColdBootPending,
	}
}

// Begin records that a join has been requested.
func (j *JoinController) Begin() {
	j.phase = PhaseJoining
}

// OnResult books a join result. It returns true when the result belongs to the
// cold-boot sequence and the retry task must be scheduled once the indicator
// completes. Results after cold boot only update the joined flag.
func (j *JoinController) OnResult(success bool) bool {
	j.joined = success
	if !j.coldBoot {
		if success {
			j.phase = PhaseJoined
		} else {
			j.phase = PhaseJoinFailedRetrying
		}
		return false
	}

	if success {
		j.attempts = 0
		j.phase = PhaseJoined
		return true
	}

	if j.attempts > 0 {
		j.attempts--
	}
	j.phase = PhaseJoinFailedRetrying
	return true
}

// Retry runs the retry-task step.
func (j *JoinController) Retry() RetryAction {
	if j.attempts > 0 {
		j.phase = PhaseJoining
		return RetryJoin
	}
	if !j.coldBoot {
		return RetryNone
	}

	j.coldBoot = false
	if !j.joined {
		j.phase = PhaseJoinAbandoned
	}
	return RetryFinish
}

// ColdBoot reports whether the cold-boot sequence is still running.
func (j *JoinController) ColdBoot() bool {
	return j.coldBoot
}

// Attempts returns the remaining cold-boot join attempts.
func (j *JoinController) Attempts() uint8 {
	return j.attempts
}

// Joined reports whether the last join result was a success.
func (j *JoinController) Joined() bool {
	return j.joined
}

// Phase returns the current phase.
func (j *JoinController) Phase() JoinPhase {
	return j.phase
}
