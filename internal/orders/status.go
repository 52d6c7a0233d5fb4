package orders

// Status is the lifecycle of one order attempt
type Status string

const (
	StatusIdle        Status = "IDLE"
	StatusCapturing   Status = "CAPTURING"
	StatusCreating    Status = "CREATING"
	StatusPurchasing  Status = "PURCHASING"
	StatusRedirecting Status = "REDIRECTING"
	StatusFailed      Status = "FAILED"
	StatusCompensated Status = "COMPENSATED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusCapturing, StatusCreating, StatusPurchasing,
		StatusRedirecting, StatusFailed, StatusCompensated:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanStartNew reports whether a fresh attempt may replace one in this state
func (s Status) CanStartNew() bool {
	return s == StatusIdle || s == StatusFailed || s == StatusCompensated
}

// Compensatable reports whether aborting now must delete the artifact:
// the capture exists but the order has not been purchased. Once the
// attempt is redirecting the artifact is needed downstream and stays.
func (s Status) Compensatable() bool {
	return s == StatusCapturing || s == StatusCreating
}
