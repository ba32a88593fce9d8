package hook

import "sync/atomic"

// invocationID is process-global so that two concurrent invocations, even of
// different targets, never share an identifier.
var invocationID atomic.Uint64

// Invocation carries the per-call interception state threaded through the
// handlers of a single intercepted call. It is owned exclusively by that
// call and must never be reused across invocations.
type Invocation struct {
	// ID is assigned monotonically when the invocation is created.
	ID uint64

	// Receiver is the value the operation is invoked on, nil for free
	// functions.
	Receiver any

	// Args is the ordered argument list. Before handlers mutate it in
	// place; the same backing slice is passed to the real operation and
	// observed by After handlers.
	Args []any

	// Call invokes the original operation directly, bypassing dispatch.
	// After handlers may use it to re-invoke the operation without
	// recursing into their own hooks.
	Call func(args []any) (any, error)

	// Result and Err hold the operation's outcome, populated before After
	// handlers run.
	Result any
	Err    error
}

// NewInvocation builds the interception context for one call of target's
// operation. op is the direct handle to the original operation.
func NewInvocation(receiver any, args []any, op func(args []any) (any, error)) *Invocation {
	return &Invocation{
		ID:       invocationID.Add(1),
		Receiver: receiver,
		Args:     args,
		Call:     op,
	}
}

// DispatchBefore runs every matching Before handler in registration order.
// A panicking handler propagates to the surrounding execution; handler
// failures are coding errors, not expected control flow.
func (r *Registry) DispatchBefore(t Target, inv *Invocation) {
	s := r.lookup(t)
	if s == nil {
		return
	}
	for _, h := range s.before {
		if matches(h.Target.Signature, t.Signature) {
			h.Before(inv)
		}
	}
}

// DispatchAfter runs every matching After handler in registration order.
// inv.Result and inv.Err must already hold the operation's outcome.
func (r *Registry) DispatchAfter(t Target, inv *Invocation) {
	s := r.lookup(t)
	if s == nil {
		return
	}
	for _, h := range s.after {
		if matches(h.Target.Signature, t.Signature) {
			h.After(inv)
		}
	}
}

// replaceFor returns the Replace handler for t, nil if none is registered.
func (r *Registry) replaceFor(t Target) ReplaceHandler {
	s := r.lookup(t)
	if s == nil {
		return nil
	}
	for _, h := range s.replace {
		if matches(h.Target.Signature, t.Signature) {
			return h.Replace
		}
	}
	return nil
}

// Intercept is the instrumented call site: it builds the invocation, runs
// Before handlers, invokes the original operation (or its Replace handler),
// runs After handlers, and returns the outcome delivered to the caller.
// After handlers observe the outcome but cannot change it.
func (r *Registry) Intercept(t Target, receiver any, args []any, op func(args []any) (any, error)) (any, error) {
	inv := NewInvocation(receiver, args, op)
	r.DispatchBefore(t, inv)

	if replace := r.replaceFor(t); replace != nil {
		inv.Result, inv.Err = replace(inv)
	} else {
		inv.Result, inv.Err = op(inv.Args)
	}

	r.DispatchAfter(t, inv)
	return inv.Result, inv.Err
}
