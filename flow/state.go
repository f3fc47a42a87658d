package flow

import (
	"fmt"
	"slices"

	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
)

// Step names a flow operation. The names double as metric labels.
type Step string

const (
	StepRegister Step = "register"
	StepBind1    Step = "bind_step1"
	StepCallback Step = "callback"
	StepBind2    Step = "bind_step2"
	StepBind3    Step = "bind_step3"
	StepPayment1 Step = "payment_step1"
	StepPayment2 Step = "payment_step2"
)

// transitions lists the states each step may start from. StateUnregistered
// stands for "no session stored yet".
var transitions = map[Step][]flowstore.State{
	StepRegister: {flowstore.StateUnregistered, flowstore.StateRegistered},
	StepBind1: {
		flowstore.StateRegistered,
		flowstore.StateEnrolled,
		flowstore.StatePARIssued,
		flowstore.StateAwaitingCallback,
	},
	StepCallback: {
		flowstore.StatePARIssued,
		flowstore.StateAwaitingCallback,
		flowstore.StateCallbackReceived,
	},
	StepBind2:    {flowstore.StateCallbackReceived, flowstore.StateTokenExchanged},
	StepBind3:    {flowstore.StateCeremonyOptionsIssued},
	StepPayment1: {flowstore.StateDeviceBound, flowstore.StateConsentCreated, flowstore.StateConsentAuthorized},
	StepPayment2: {flowstore.StateConsentCreated},
}

// Allowed reports whether step may run while the flow is in state.
func Allowed(step Step, state flowstore.State) bool {
	return slices.Contains(transitions[step], state)
}

func checkTransition(step Step, state flowstore.State) error {
	if Allowed(step, state) {
		return nil
	}
	return apperrors.New(apperrors.KindInvalidState, string(step),
		fmt.Errorf("%w: flow is %s", apperrors.ErrInvalidState, state))
}

func stateOf(session *flowstore.FlowSession) flowstore.State {
	if session == nil || session.State == "" {
		return flowstore.StateUnregistered
	}
	return session.State
}
