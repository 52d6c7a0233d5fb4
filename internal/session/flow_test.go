package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardPath(t *testing.T) {
	assert.True(t, CanTransition(StepSeatAndPassenger, StepReview))
	assert.True(t, CanTransition(StepReview, StepPayment))
	assert.True(t, CanTransition(StepPayment, StepComplete))
}

func TestCanTransition_BackwardLandsOnSeatStep(t *testing.T) {
	assert.True(t, CanTransition(StepReview, StepSeatAndPassenger))
	assert.True(t, CanTransition(StepPayment, StepSeatAndPassenger))
	assert.False(t, CanTransition(StepPayment, StepReview))
}

func TestCanTransition_ExpiryReachableFromLiveSteps(t *testing.T) {
	for _, from := range []Step{StepSeatAndPassenger, StepReview, StepPayment} {
		assert.True(t, CanTransition(from, StepExpired), "from %s", from)
	}
}

func TestCanTransition_TerminalStepsAreDeadEnds(t *testing.T) {
	for _, to := range []Step{StepSeatAndPassenger, StepReview, StepPayment, StepExpired} {
		assert.False(t, CanTransition(StepComplete, to))
		assert.False(t, CanTransition(StepExpired, to))
	}
	assert.True(t, StepComplete.IsTerminal())
	assert.True(t, StepExpired.IsTerminal())
}

func TestNextStep(t *testing.T) {
	next, ok := NextStep(StepSeatAndPassenger)
	assert.True(t, ok)
	assert.Equal(t, StepReview, next)

	next, ok = NextStep(StepPayment)
	assert.True(t, ok)
	assert.Equal(t, StepComplete, next)

	_, ok = NextStep(StepComplete)
	assert.False(t, ok)
	_, ok = NextStep(StepExpired)
	assert.False(t, ok)
}
