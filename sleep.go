// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"time"

	"code.hybscloud.com/atomix"
)

// Sleep returns a promise that resolves once d has elapsed on the party's
// event engine. The first poll arms a timer carrying an owning waker; the
// party therefore stays alive until the timer fires.
func Sleep(d time.Duration) Promise[Empty] {
	armed := false
	fired := &atomix.Uint32{}
	return func(ctx *Context) Poll[Empty] {
		if fired.Load() != 0 || ctx.Cancelled() {
			return Ready(Empty{})
		}
		if !armed {
			armed = true
			waker := ctx.MakeOwningWaker()
			ctx.EventEngine().RunAfter(d, func() {
				fired.Store(1)
				waker.Wakeup()
			})
		}
		return Pending[Empty]()
	}
}

// SleepUntil returns a promise that resolves once the engine clock reaches t.
func SleepUntil(t time.Time) Promise[Empty] {
	started := false
	var inner Promise[Empty]
	return func(ctx *Context) Poll[Empty] {
		if !started {
			started = true
			inner = Sleep(t.Sub(ctx.EventEngine().Now()))
		}
		return inner(ctx)
	}
}
