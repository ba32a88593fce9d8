package engine

import (
	"bytes"
	"context"
	"runtime"
	"testing"
)

func TestExecEngineReturnsExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	var out bytes.Buffer
	e := &ExecEngine{Path: "/bin/sh", Stdout: &out, Stderr: &out}

	exit, err := e.Run(context.Background(), []string{"argv0", "-c", "exit 7"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exit != 7 {
		t.Errorf("exit = %d, want 7", exit)
	}

	exit, err = e.Run(context.Background(), []string{"argv0", "-c", "true"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exit != 0 {
		t.Errorf("exit = %d, want 0", exit)
	}
}

func TestExecEngineLaunchFailure(t *testing.T) {
	e := &ExecEngine{Path: "/nonexistent/fuzz-engine"}
	if _, err := e.Run(context.Background(), []string{"argv0"}, nil); err == nil {
		t.Fatal("Run succeeded for a missing binary")
	}
}

func TestExecEngineRejectsEmptyArgs(t *testing.T) {
	e := &ExecEngine{Path: "/bin/sh"}
	if _, err := e.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("Run succeeded with an empty argument vector")
	}
}
