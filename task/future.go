// Package task runs cooperative kernel tasks. A task wraps a Future that is polled until it
// completes; a Future that cannot make progress returns Pending and arranges for its Waker to be
// called once it can.
package task

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// Poll is the outcome of polling a Future
type Poll int

const (
	Pending Poll = iota
	Ready
)

func (p Poll) String() string {
	if p == Ready {
		return "Ready"
	}
	return "Pending"
}

// Waker reschedules the task it belongs to. Wake must be safe to call from interrupt context, from
// any goroutine, any number of times, including after the task has completed.
type Waker interface {
	Wake()
}

// WakerFunc adapts a function to the Waker interface
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

// NoopWaker does nothing when woken
var NoopWaker Waker = WakerFunc(func() {})

// Context is handed to every Poll call and carries the Waker of the task being polled
type Context struct {
	waker Waker
}

func NewContext(waker Waker) *Context {
	if waker == nil {
		waker = NoopWaker
	}
	return &Context{waker: waker}
}

func (c *Context) Waker() Waker { return c.waker }

// Future is a computation that completes at some point in the future. Poll advances it as far as it
// can go without blocking. When it returns Pending, the future must have arranged for
// cx.Waker() to be called once progress is possible again.
type Future interface {
	Poll(cx *Context) Poll
}

// FutureFunc adapts a function to the Future interface
type FutureFunc func(cx *Context) Poll

func (f FutureFunc) Poll(cx *Context) Poll { return f(cx) }

// Await lets the body of an Async future suspend until another future is ready
type Await struct {
	owner *asyncFuture
	yield func(struct{}) bool
}

var errAsyncCancelled = errors.New("async future was dropped while suspended")

// Context returns the context of the poll currently driving the body
func (aw *Await) Context() *Context {
	return aw.owner.cx
}

func (aw *Await) suspend() {
	if !aw.yield(struct{}{}) {
		panic(errAsyncCancelled)
	}
}

// Wait polls future until it is Ready, suspending the body every time it is Pending
func (aw *Await) Wait(future Future) {
	for future.Poll(aw.owner.cx) == Pending {
		aw.suspend()
	}
}

// Yield gives other tasks a chance to run. The body's task is rescheduled immediately.
func (aw *Await) Yield() {
	aw.owner.cx.Waker().Wake()
	aw.suspend()
}

// Next polls a stream-like source until it produces a value, suspending the body every time it
// is Pending
func Next[T any](aw *Await, pollNext func(cx *Context) (T, Poll)) T {
	for {
		value, poll := pollNext(aw.owner.cx)
		if poll == Ready {
			return value
		}
		aw.suspend()
	}
}

type asyncFuture struct {
	next func() (struct{}, bool)
	stop func()
	cx   *Context
	done bool
}

// Async turns straight-line code into a Future. The body runs as a coroutine: each Poll resumes it
// until it waits on something that is not ready yet, and the future is Ready once the body returns.
func Async(body func(aw *Await)) Future {
	f := &asyncFuture{}
	f.next, f.stop = iter.Pull(func(yield func(struct{}) bool) {
		defer func() {
			if r := recover(); r != nil && r != errAsyncCancelled {
				panic(r)
			}
		}()

		body(&Await{owner: f, yield: yield})
	})
	return f
}

func (f *asyncFuture) Poll(cx *Context) Poll {
	if f.done {
		return Ready
	}

	f.cx = cx
	_, suspended := f.next()
	f.cx = nil

	if !suspended {
		f.done = true
		return Ready
	}
	return Pending
}

// Cancel abandons a suspended body. Deferred calls in the body still run.
func (f *asyncFuture) Cancel() {
	if !f.done {
		f.done = true
		f.stop()
	}
}

// Canceler is implemented by futures that hold resources until they complete
type Canceler interface {
	Cancel()
}
