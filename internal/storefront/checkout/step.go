package checkout

type Step string

const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

func (s Step) IsTerminal() bool {
	return s == StepConfirmation
}

func (s Step) String() string {
	return string(s)
}

// CanTransition reports whether the flow may move from one step to another.
// The flow is linear; only Payment can go back.
func CanTransition(from, to Step) bool {
	switch from {
	case StepShipping:
		return to == StepPayment
	case StepPayment:
		return to == StepShipping || to == StepConfirmation
	}
	return false
}
