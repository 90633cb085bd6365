// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Dispatcher advances one suspended effect operation. It must not block:
// return [code.hybscloud.com/iox.ErrWouldBlock] after capturing a waker from
// ctx to suspend the hosting participant; any other error is a programmer
// fault.
type Dispatcher func(ctx *Context, op kont.Operation) (kont.Resumed, error)

// FromExpr hosts a defunctionalized kont computation as a participant
// promise. Each poll drains as many effect operations as dispatch will admit
// and suspends at the first would-block boundary.
func FromExpr[R any](expr kont.Expr[R], dispatch Dispatcher) Promise[R] {
	started := false
	var result R
	var susp *kont.Suspension[R]
	return func(ctx *Context) Poll[R] {
		if !started {
			started = true
			result, susp = kont.StepExpr(expr)
		}
		for susp != nil {
			v, err := dispatch(ctx, susp.Op())
			if err != nil {
				if iox.IsWouldBlock(err) {
					return Pending[R]()
				}
				panic("party: bridge dispatch failed: " + err.Error())
			}
			result, susp = susp.Resume(v)
		}
		return Ready(result)
	}
}

// FromEff hosts a Cont-world kont computation as a participant promise.
func FromEff[R any](m kont.Eff[R], dispatch Dispatcher) Promise[R] {
	return FromExpr(kont.Reify(m), dispatch)
}
