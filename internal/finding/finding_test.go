package finding

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestThresholdMarksExactlyTheNthFailureTerminating(t *testing.T) {
	for _, threshold := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("keepGoing=%d", threshold), func(t *testing.T) {
			a := NewAggregator(threshold)

			for i := 1; i < threshold; i++ {
				if stop := a.Observe(fmt.Errorf("failure %d", i)); stop {
					t.Fatalf("failure %d stopped the run before the threshold", i)
				}
			}
			if stop := a.Observe(fmt.Errorf("failure %d", threshold)); !stop {
				t.Fatalf("failure %d did not stop the run at the threshold", threshold)
			}

			term := a.Terminating()
			if term == nil {
				t.Fatal("no terminating finding recorded")
			}
			if term.Ordinal != threshold {
				t.Errorf("terminating ordinal = %d, want %d", term.Ordinal, threshold)
			}
			for _, f := range a.Findings() {
				if f.Terminating != (f.Ordinal == threshold) {
					t.Errorf("finding %d has Terminating=%v", f.Ordinal, f.Terminating)
				}
			}
		})
	}
}

func TestZeroThresholdNeverTerminates(t *testing.T) {
	a := NewAggregator(0)
	for i := 0; i < 100; i++ {
		if stop := a.Observe(errors.New("failure")); stop {
			t.Fatalf("run stopped at failure %d with keep-going 0", i+1)
		}
	}
	if a.Terminating() != nil {
		t.Error("terminating finding recorded with keep-going 0")
	}
	if got := a.Count(); got != 100 {
		t.Errorf("Count = %d, want 100", got)
	}
	if got := len(a.Findings()); got != 100 {
		t.Errorf("recorded %d findings, want 100", got)
	}
}

func TestObserveBeyondThresholdKeepsStopping(t *testing.T) {
	a := NewAggregator(1)
	if !a.Observe(errors.New("first")) {
		t.Fatal("first failure did not stop the run")
	}
	if !a.Observe(errors.New("second")) {
		t.Error("failure past the threshold reported stop=false")
	}
	if term := a.Terminating(); term == nil || term.Ordinal != 1 {
		t.Errorf("terminating finding = %+v, want ordinal 1", term)
	}
}

func TestConcurrentObserversProduceOneTerminatingFinding(t *testing.T) {
	const threshold = 8
	const workers = 64
	a := NewAggregator(threshold)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Observe(errors.New("racing failure"))
		}()
	}
	wg.Wait()

	terminating := 0
	for _, f := range a.Findings() {
		if f.Terminating {
			terminating++
		}
	}
	if terminating != 1 {
		t.Errorf("%d findings marked terminating, want exactly 1", terminating)
	}
	if term := a.Terminating(); term == nil || term.Ordinal != threshold {
		t.Errorf("terminating finding = %+v, want ordinal %d", term, threshold)
	}
}

func TestOutcome(t *testing.T) {
	if Success().Failed() {
		t.Error("Success reports Failed")
	}
	cause := errors.New("boom")
	f := Failure(cause)
	if !f.Failed() {
		t.Error("Failure does not report Failed")
	}
	if !errors.Is(f.Cause(), cause) {
		t.Errorf("Cause = %v, want boom", f.Cause())
	}
}
