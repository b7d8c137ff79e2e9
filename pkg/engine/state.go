// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"

	"github.com/qmuntal/stateless"
)

// PwmState is the externally visible lifecycle state of a single control's
// PWM output, per spec §4.D: Idle -> Spinup -> Tracking{Hold,Emit} -> Idle.
type PwmState string

const (
	StateIdle     PwmState = "idle"
	StateSpinup   PwmState = "spinup"
	StateTracking PwmState = "tracking"
)

type pwmTrigger string

const (
	triggerTargetPositive pwmTrigger = "target_positive"
	triggerSpinupElapsed  pwmTrigger = "spinup_elapsed"
	triggerTargetZero     pwmTrigger = "target_zero"
)

// pwmFSM wraps a qmuntal/stateless machine for one control's PWM lifecycle.
// Hold/Emit are not modeled as stateless states (they carry no transition
// logic of their own); the tick loop does not record or report them.
type pwmFSM struct {
	sm *stateless.StateMachine
}

func newPwmFSM() *pwmFSM {
	sm := stateless.NewStateMachine(StateIdle)

	sm.Configure(StateIdle).
		Permit(triggerTargetPositive, StateSpinup)

	sm.Configure(StateSpinup).
		Permit(triggerSpinupElapsed, StateTracking).
		Permit(triggerTargetZero, StateIdle)

	sm.Configure(StateTracking).
		Permit(triggerTargetZero, StateIdle)

	return &pwmFSM{sm: sm}
}

func (f *pwmFSM) state() PwmState {
	return f.sm.MustState().(PwmState)
}

func (f *pwmFSM) onTargetPositive(ctx context.Context) {
	if f.state() == StateIdle {
		_ = f.sm.FireCtx(ctx, triggerTargetPositive)
	}
}

func (f *pwmFSM) onSpinupElapsed(ctx context.Context) {
	if f.state() == StateSpinup {
		_ = f.sm.FireCtx(ctx, triggerSpinupElapsed)
	}
}

func (f *pwmFSM) onTargetZero(ctx context.Context) {
	if can, _ := f.sm.CanFireCtx(ctx, triggerTargetZero); can {
		_ = f.sm.FireCtx(ctx, triggerTargetZero)
	}
}
