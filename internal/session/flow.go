package session

import "errors"

var ErrInvalidTransition = errors.New("step transition not allowed")

// Step is one stage of the linear booking wizard
type Step string

const (
	StepSeatAndPassenger Step = "SEAT_AND_PASSENGER"
	StepReview           Step = "REVIEW"
	StepPayment          Step = "PAYMENT"
	StepComplete         Step = "COMPLETE"
	StepExpired          Step = "EXPIRED"
)

func (s Step) IsValid() bool {
	switch s {
	case StepSeatAndPassenger, StepReview, StepPayment, StepComplete, StepExpired:
		return true
	}
	return false
}

func (s Step) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition leaves this step
func (s Step) IsTerminal() bool {
	return s == StepComplete || s == StepExpired
}

// allowedTransitions maps each step to the steps reachable from it. Expiry
// is reachable from every live step; backward navigation always lands on
// the seat+passenger step.
var allowedTransitions = map[Step][]Step{
	StepSeatAndPassenger: {StepReview, StepExpired},
	StepReview:           {StepPayment, StepSeatAndPassenger, StepExpired},
	StepPayment:          {StepComplete, StepSeatAndPassenger, StepExpired},
	StepComplete:         {},
	StepExpired:          {},
}

// CanTransition reports whether moving from one step to another is allowed
func CanTransition(from, to Step) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStep returns the forward neighbor of a step, if one exists
func NextStep(s Step) (Step, bool) {
	switch s {
	case StepSeatAndPassenger:
		return StepReview, true
	case StepReview:
		return StepPayment, true
	case StepPayment:
		return StepComplete, true
	}
	return s, false
}
