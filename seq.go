// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package party

import (
	"code.hybscloud.com/kont"
)

// Combinators over the poll contract. No async runtime underneath: each
// combinator is a stateful closure advanced by repeated polls.

// Immediate lifts a value into an already-ready promise.
func Immediate[T any](v T) Promise[T] {
	return func(*Context) Poll[T] {
		return Ready(v)
	}
}

// Seq polls first to completion, then polls the promise constructed from its
// result. The continuation is constructed at most once and polled in the
// same turn its input became ready.
func Seq[A, B any](first Promise[A], then func(A) Promise[B]) Promise[B] {
	var second Promise[B]
	return func(ctx *Context) Poll[B] {
		if second == nil {
			v, ok := first(ctx).Done()
			if !ok {
				return Pending[B]()
			}
			second = then(v)
		}
		return second(ctx)
	}
}

// Then sequences two promises, discarding the first result.
func Then[A, B any](first Promise[A], second Promise[B]) Promise[B] {
	return Seq(first, func(A) Promise[B] { return second })
}

// Map applies f to the promise's result.
func Map[A, B any](p Promise[A], f func(A) B) Promise[B] {
	return func(ctx *Context) Poll[B] {
		v, ok := p(ctx).Done()
		if !ok {
			return Pending[B]()
		}
		return Ready(f(v))
	}
}

// TrySeq sequences two fallible promises, short-circuiting on Left.
func TrySeq[E, A, B any](first Promise[kont.Either[E, A]], then func(A) Promise[kont.Either[E, B]]) Promise[kont.Either[E, B]] {
	var second Promise[kont.Either[E, B]]
	return func(ctx *Context) Poll[kont.Either[E, B]] {
		if second == nil {
			v, ok := first(ctx).Done()
			if !ok {
				return Pending[kont.Either[E, B]]()
			}
			if e, bad := v.GetLeft(); bad {
				return Ready(kont.Left[E, B](e))
			}
			a, _ := v.GetRight()
			second = then(a)
		}
		return second(ctx)
	}
}

// If lazily constructs one of two promises on first poll.
func If[T any](cond bool, ifTrue, ifFalse func() Promise[T]) Promise[T] {
	var chosen Promise[T]
	return func(ctx *Context) Poll[T] {
		if chosen == nil {
			if cond {
				chosen = ifTrue()
			} else {
				chosen = ifFalse()
			}
		}
		return chosen(ctx)
	}
}

// Loop runs a recursive promise. step returns Left(nextState) to continue or
// Right(result) to finish.
func Loop[S, A any](initial S, step func(S) Promise[kont.Either[S, A]]) Promise[A] {
	cur := step(initial)
	return func(ctx *Context) Poll[A] {
		for {
			v, ok := cur(ctx).Done()
			if !ok {
				return Pending[A]()
			}
			if left, more := v.GetLeft(); more {
				cur = step(left)
				continue
			}
			right, _ := v.GetRight()
			return Ready(right)
		}
	}
}

// ForEach pumps a stream into body until the stream closes or body reports
// failure. pull is invoked once per element; body's false short-circuits the
// pump. Resolves true when the stream drained, false on body failure.
func ForEach[T any](pull func() Promise[Next[T]], body func(T) Promise[bool]) Promise[bool] {
	cur := pull()
	inBody := false
	var bodyP Promise[bool]
	return func(ctx *Context) Poll[bool] {
		for {
			if inBody {
				ok, done := bodyP(ctx).Done()
				if !done {
					return Pending[bool]()
				}
				if !ok {
					return Ready(false)
				}
				inBody = false
				cur = pull()
			}
			next, done := cur(ctx).Done()
			if !done {
				return Pending[bool]()
			}
			if !next.Ok {
				return Ready(true)
			}
			inBody = true
			bodyP = body(next.Value)
		}
	}
}
