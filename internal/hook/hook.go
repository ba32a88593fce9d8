// Package hook implements the method-interception engine: a registry of
// handlers attached to named target operations, invoked before, after, or
// instead of the operation by instrumented call sites.
//
// The registry is built once at startup and frozen before fuzzing begins;
// dispatch is lock-free from then on.
package hook

import (
	"fmt"
	"sync"
)

// Type selects when a handler runs relative to the target operation.
type Type int

const (
	// Before handlers run ahead of the operation and may mutate its
	// arguments in place.
	Before Type = iota
	// After handlers run once the operation has completed, successfully or
	// not, and observe its return value or failure.
	After
	// Replace handlers run instead of the operation and supply its result.
	Replace
)

func (t Type) String() string {
	switch t {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Replace:
		return "REPLACE"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Target identifies an interceptable operation: the owning type, the
// operation name, and an optional signature to disambiguate overloads.
// An empty Signature on a registered hook matches every overload.
type Target struct {
	Owner     string
	Method    string
	Signature string
}

func (t Target) String() string {
	if t.Signature == "" {
		return t.Owner + "." + t.Method
	}
	return t.Owner + "." + t.Method + t.Signature
}

// BeforeHandler runs ahead of the intercepted operation. Mutations of
// inv.Args are visible to the real operation and to After handlers of the
// same invocation.
type BeforeHandler func(inv *Invocation)

// AfterHandler observes the completed invocation via inv.Result and inv.Err.
// It may re-invoke the original operation through inv.Call, which bypasses
// dispatch, but must not alter the value already delivered to the caller.
type AfterHandler func(inv *Invocation)

// ReplaceHandler substitutes the original operation entirely.
type ReplaceHandler func(inv *Invocation) (any, error)

// Hook binds a handler to a target operation. Exactly one of the handler
// fields matching Kind must be set.
type Hook struct {
	Target  Target
	Kind    Type
	Before  BeforeHandler
	After   AfterHandler
	Replace ReplaceHandler
}

// ConflictError reports a hook registration the registry rejects, either
// because the registry is already frozen or because the hook kinds are
// mutually exclusive on the same target.
type ConflictError struct {
	Target Target
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("hook: cannot register hook on %s: %s", e.Target, e.Reason)
}

type slotKey struct {
	owner  string
	method string
}

// slot holds every hook registered for one (owner, method) pair, in
// registration order per kind. Signature filtering happens at dispatch.
type slot struct {
	before  []Hook
	after   []Hook
	replace []Hook
}

// Registry maps target operations to their registered hooks. Register all
// hooks during startup, call Freeze, then dispatch freely from any number of
// concurrently executing target invocations.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	slots  map[slotKey]*slot
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[slotKey]*slot)}
}

// Register adds h to the registry. Multiple Before or After hooks on the
// same target coexist and run in registration order. A Replace hook is
// exclusive with After hooks on the same target (and with a second Replace):
// Replace substitutes the operation, so an After hook could never observe
// the original's true result. Registration after Freeze fails.
func (r *Registry) Register(h Hook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return &ConflictError{Target: h.Target, Reason: "registry is frozen"}
	}
	if err := validate(h); err != nil {
		return err
	}

	key := slotKey{owner: h.Target.Owner, method: h.Target.Method}
	s := r.slots[key]
	if s == nil {
		s = &slot{}
		r.slots[key] = s
	}

	switch h.Kind {
	case Before:
		s.before = append(s.before, h)
	case After:
		if len(s.replace) > 0 {
			return &ConflictError{Target: h.Target, Reason: "target already has a REPLACE hook"}
		}
		s.after = append(s.after, h)
	case Replace:
		if len(s.after) > 0 {
			return &ConflictError{Target: h.Target, Reason: "target already has AFTER hooks"}
		}
		if len(s.replace) > 0 {
			return &ConflictError{Target: h.Target, Reason: "target already has a REPLACE hook"}
		}
		s.replace = append(s.replace, h)
	}
	return nil
}

// MustRegister is Register for static hook declarations known to be valid.
func (r *Registry) MustRegister(h Hook) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Freeze marks the registry immutable. Dispatch before Freeze is not
// supported; dispatch after Freeze needs no locking.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func validate(h Hook) error {
	switch h.Kind {
	case Before:
		if h.Before == nil {
			return &ConflictError{Target: h.Target, Reason: "BEFORE hook has no Before handler"}
		}
	case After:
		if h.After == nil {
			return &ConflictError{Target: h.Target, Reason: "AFTER hook has no After handler"}
		}
	case Replace:
		if h.Replace == nil {
			return &ConflictError{Target: h.Target, Reason: "REPLACE hook has no Replace handler"}
		}
	default:
		return &ConflictError{Target: h.Target, Reason: fmt.Sprintf("unknown hook kind %d", h.Kind)}
	}
	if h.Target.Owner == "" || h.Target.Method == "" {
		return &ConflictError{Target: h.Target, Reason: "target owner and method are required"}
	}
	return nil
}

func (r *Registry) lookup(t Target) *slot {
	return r.slots[slotKey{owner: t.Owner, method: t.Method}]
}

func matches(hookSig, callSig string) bool {
	return hookSig == "" || hookSig == callSig
}
