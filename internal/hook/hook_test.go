package hook

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// safe is a minimal stateful target: the constructor stores its first
// argument, Open returns it.
type safe struct {
	combination string
	opens       int
}

var newSafeTarget = Target{Owner: "vaultpkg.Safe", Method: "NewSafe"}

func newSafe(reg *Registry, combination string) (*safe, error) {
	result, err := reg.Intercept(newSafeTarget, nil, []any{combination}, func(args []any) (any, error) {
		return &safe{combination: args[0].(string)}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*safe), nil
}

func TestBeforeMutationVisibleToOperationAndAfterHook(t *testing.T) {
	reg := NewRegistry()

	reg.MustRegister(Hook{
		Target: newSafeTarget,
		Kind:   Before,
		Before: func(inv *Invocation) {
			inv.Args[0] = "hunter3"
		},
	})

	var observed string
	reg.MustRegister(Hook{
		Target: newSafeTarget,
		Kind:   After,
		After: func(inv *Invocation) {
			s := inv.Result.(*safe)
			// The constructed state and the argument array must agree:
			// both reflect the BEFORE hook's mutation.
			if s.combination != inv.Args[0].(string) {
				t.Errorf("constructed state %q disagrees with args[0] %q", s.combination, inv.Args[0])
			}
			observed = s.combination
		},
	})
	reg.Freeze()

	s, err := newSafe(reg, "hunter2")
	if err != nil {
		t.Fatalf("newSafe: %v", err)
	}
	if s.combination != "hunter3" {
		t.Errorf("operation saw combination %q, want mutated %q", s.combination, "hunter3")
	}
	if observed != "hunter3" {
		t.Errorf("AFTER hook observed %q, want %q", observed, "hunter3")
	}
}

func TestAfterHookReinvokesOriginalWithoutRecursion(t *testing.T) {
	reg := NewRegistry()
	target := Target{Owner: "vaultpkg.Safe", Method: "Open"}

	reg.MustRegister(Hook{
		Target: target,
		Kind:   After,
		After: func(inv *Invocation) {
			// Re-invoking through inv.Call bypasses dispatch, so this
			// does not trigger the AFTER hook again.
			if _, err := inv.Call(inv.Args); err != nil {
				t.Errorf("re-invocation failed: %v", err)
			}
		},
	})
	reg.Freeze()

	s := &safe{combination: "hunter2"}
	open := func(args []any) (any, error) {
		s.opens++
		return s.combination, nil
	}

	result, err := reg.Intercept(target, s, nil, open)
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if result != "hunter2" {
		t.Errorf("result = %v, want hunter2", result)
	}
	if s.opens != 2 {
		t.Errorf("operation ran %d times, want 2 (original + one re-invocation)", s.opens)
	}
}

func TestBeforeHooksRunInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	target := Target{Owner: "pkg.T", Method: "M"}

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		reg.MustRegister(Hook{
			Target: target,
			Kind:   Before,
			Before: func(inv *Invocation) { order = append(order, i) },
		})
	}
	reg.Freeze()

	if _, err := reg.Intercept(target, nil, nil, func([]any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("BEFORE hooks ran in order %v, want [0 1 2]", order)
	}
}

func TestReplaceSubstitutesOriginal(t *testing.T) {
	reg := NewRegistry()
	target := Target{Owner: "pkg.T", Method: "M"}

	reg.MustRegister(Hook{
		Target:  target,
		Kind:    Replace,
		Replace: func(inv *Invocation) (any, error) { return "synthetic", nil },
	})
	reg.Freeze()

	ran := false
	result, err := reg.Intercept(target, nil, nil, func([]any) (any, error) {
		ran = true
		return "real", nil
	})
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if ran {
		t.Error("original operation ran despite REPLACE hook")
	}
	if result != "synthetic" {
		t.Errorf("result = %v, want synthetic", result)
	}
}

func TestReplaceAndAfterAreMutuallyExclusive(t *testing.T) {
	target := Target{Owner: "pkg.T", Method: "M"}
	after := Hook{Target: target, Kind: After, After: func(*Invocation) {}}
	replace := Hook{Target: target, Kind: Replace, Replace: func(*Invocation) (any, error) { return nil, nil }}

	reg := NewRegistry()
	if err := reg.Register(after); err != nil {
		t.Fatalf("registering AFTER hook: %v", err)
	}
	err := reg.Register(replace)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("REPLACE after AFTER: got %v, want ConflictError", err)
	}

	reg = NewRegistry()
	if err := reg.Register(replace); err != nil {
		t.Fatalf("registering REPLACE hook: %v", err)
	}
	if err := reg.Register(after); err == nil {
		t.Fatal("AFTER after REPLACE registered without error")
	}
	if err := reg.Register(replace); err == nil {
		t.Fatal("second REPLACE registered without error")
	}
}

func TestRegisterAfterFreezeFails(t *testing.T) {
	reg := NewRegistry()
	reg.Freeze()
	err := reg.Register(Hook{
		Target: Target{Owner: "pkg.T", Method: "M"},
		Kind:   Before,
		Before: func(*Invocation) {},
	})
	if err == nil {
		t.Fatal("Register succeeded on a frozen registry")
	}
}

func TestSignatureSpecificHookMatchesOnlyItsOverload(t *testing.T) {
	reg := NewRegistry()
	fired := 0
	reg.MustRegister(Hook{
		Target: Target{Owner: "pkg.T", Method: "M", Signature: "(string)"},
		Kind:   Before,
		Before: func(*Invocation) { fired++ },
	})
	reg.Freeze()

	op := func([]any) (any, error) { return nil, nil }
	reg.Intercept(Target{Owner: "pkg.T", Method: "M", Signature: "(int)"}, nil, nil, op)
	if fired != 0 {
		t.Errorf("hook fired for non-matching overload")
	}
	reg.Intercept(Target{Owner: "pkg.T", Method: "M", Signature: "(string)"}, nil, nil, op)
	if fired != 1 {
		t.Errorf("hook fired %d times for matching overload, want 1", fired)
	}
}

func TestAfterHookObservesFailure(t *testing.T) {
	reg := NewRegistry()
	target := Target{Owner: "pkg.T", Method: "M"}
	boom := errors.New("boom")

	var seen error
	reg.MustRegister(Hook{
		Target: target,
		Kind:   After,
		After:  func(inv *Invocation) { seen = inv.Err },
	})
	reg.Freeze()

	_, err := reg.Intercept(target, nil, nil, func([]any) (any, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Intercept err = %v, want boom", err)
	}
	if !errors.Is(seen, boom) {
		t.Errorf("AFTER hook observed err = %v, want boom", seen)
	}
}

func TestConcurrentInvocationsGetDistinctIDs(t *testing.T) {
	reg := NewRegistry()
	target := Target{Owner: "pkg.T", Method: "M"}

	var mu sync.Mutex
	ids := make(map[uint64]struct{})
	reg.MustRegister(Hook{
		Target: target,
		Kind:   Before,
		Before: func(inv *Invocation) {
			mu.Lock()
			ids[inv.ID] = struct{}{}
			mu.Unlock()
		},
	})
	reg.Freeze()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Intercept(target, nil, nil, func([]any) (any, error) { return nil, nil })
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("saw %d distinct invocation IDs, want %d", len(ids), n)
	}
}

func ExampleRegistry_Intercept() {
	reg := NewRegistry()
	target := Target{Owner: "strings.Builder", Method: "Init"}
	reg.MustRegister(Hook{
		Target: target,
		Kind:   Before,
		Before: func(inv *Invocation) { inv.Args[0] = "hunter3" },
	})
	reg.Freeze()

	result, _ := reg.Intercept(target, nil, []any{"hunter2"}, func(args []any) (any, error) {
		return args[0], nil
	})
	fmt.Println(result)
	// Output: hunter3
}
