package applications

import "fmt"

// Action is an admin decision applied to an application.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// transitions is the complete review table. Reversing a decision is allowed so
// that an admin can correct a mistake; repeating one leaves the status as is.
var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
	StatusApproved: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
	StatusRejected: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
}

// Transition returns the status reached by applying action to from.
func Transition(from Status, action Action) (Status, error) {
	next, ok := transitions[from][action]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, from)
	}
	return next, nil
}

// ActionFor maps a requested target status to the decision that reaches it.
// Pending is the initial state only and has no action.
func ActionFor(target Status) (Action, error) {
	switch target {
	case StatusApproved:
		return ActionApprove, nil
	case StatusRejected:
		return ActionReject, nil
	default:
		return "", fmt.Errorf("%w: cannot move to %q", ErrInvalidTransition, target)
	}
}
