// Package executor orchestrates one fuzzing run: it resolves corpus and seed
// sources, translates the run configuration into the mutation engine's
// argument vector, invokes the engine, and reduces its exit status plus the
// captured findings into a single result.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fuzzkit/internal/config"
	"fuzzkit/internal/engine"
	"fuzzkit/internal/finding"
	"fuzzkit/internal/hook"
	"fuzzkit/internal/seed"
)

// prepared is the process-wide one-shot guard: the corpus layout and seed
// directory are per-process resources, so a second Prepare is misuse.
var prepared atomic.Bool

// resetPrepared re-arms the one-shot guard. Test use only.
func resetPrepared() { prepared.Store(false) }

// Executor drives one fuzzing run. Build it with Prepare, run it with
// Execute.
type Executor struct {
	cfg    *config.Config
	target Target
	engine engine.Engine
	hooks  *hook.Registry
	log    *zap.Logger

	runID       string
	args        []string
	seeds       *seed.Store
	findings    *finding.Aggregator
	artifactDir string
	executions  atomic.Int64
}

// Option configures an Executor during Prepare.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithHooks attaches a hook registry. Prepare freezes it, so all hooks must
// be registered beforehand.
func WithHooks(reg *hook.Registry) Option {
	return func(e *Executor) { e.hooks = reg }
}

// Prepare resolves corpus sources, creates the ephemeral seed directory and
// assembles the engine argument vector. It may be called once per process;
// reentry fails with ConfigurationError. I/O failures while creating corpus
// or seed directories propagate to the caller.
func Prepare(cfg *config.Config, target Target, eng engine.Engine, opts ...Option) (*Executor, error) {
	if !prepared.CompareAndSwap(false, true) {
		return nil, &ConfigurationError{Msg: "Prepare can only be called once per process"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Msg: "invalid run configuration", Err: err}
	}
	if target.Class == "" || target.Method == "" {
		return nil, &ConfigurationError{Msg: "target class and method are required"}
	}
	if eng == nil {
		return nil, &ConfigurationError{Msg: "a mutation engine is required"}
	}

	e := &Executor{
		cfg:      cfg,
		target:   target,
		engine:   eng,
		runID:    uuid.NewString(),
		findings: finding.NewAggregator(cfg.KeepGoing),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks != nil {
		e.hooks.Freeze()
	}

	if err := e.resolveSources(); err != nil {
		return nil, err
	}
	return e, nil
}

// resolveSources implements the corpus discovery order: user sources first,
// then the generated corpus, the read-only inputs directory, and the
// ephemeral seed directory last. In reproduction mode (every user source is
// a single regular file) nothing is discovered and no seed directory is
// created.
func (e *Executor) resolveSources() error {
	passthrough := append([]string(nil), e.cfg.Engine.Args...)

	// Positional passthrough entries are corpus sources; pull them out so
	// they can take their place at the front of the vector.
	userCorpus := append([]string(nil), e.cfg.Corpus.Dirs...)
	flags := passthrough[:0]
	for _, arg := range passthrough {
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
		} else {
			userCorpus = append(userCorpus, arg)
		}
	}
	passthrough = flags

	baseDir, err := filepath.Abs(e.cfg.Corpus.BaseDir)
	if err != nil {
		return fmt.Errorf("executor: resolving base dir: %w", err)
	}

	sources := append([]string(nil), userCorpus...)

	reproduction, err := allRegularFiles(userCorpus)
	if err != nil {
		return &ConfigurationError{Msg: "resolving corpus sources", Err: err}
	}

	if reproduction {
		// Replaying fixed inputs: no corpus directories may appear on
		// the command line and seeds are never written back.
		e.seeds = seed.NewStore("", seed.WithLogger(e.log))
		e.args = e.assembleArgs(sources, passthrough, "")
		return nil
	}

	// Only create the default generated-corpus directory when it is the
	// run's generated corpus, i.e. no user directory precedes it.
	generated := e.generatedCorpusDir(baseDir)
	if len(userCorpus) == 0 {
		if err := os.MkdirAll(generated, 0o755); err != nil {
			return fmt.Errorf("executor: creating generated corpus dir: %w", err)
		}
	}
	if dirExists(generated) {
		sources = append(sources, longPath(generated))
	}

	artifactDir := baseDir
	if inputs := e.cfg.Corpus.InputsDir; inputs != "" {
		abs, err := filepath.Abs(inputs)
		if err != nil {
			return fmt.Errorf("executor: resolving inputs dir: %w", err)
		}
		if dirExists(abs) {
			// Read-only regression corpus: from the second positional
			// argument on, the engine uses paths as seeds but never
			// writes to them.
			sources = append(sources, abs)
			artifactDir = abs
		}
	}

	seedsDir, err := os.MkdirTemp("", "fuzzkit-seeds-")
	if err != nil {
		return fmt.Errorf("executor: creating seed dir: %w", err)
	}
	e.seeds = seed.NewStore(seedsDir, seed.WithLogger(e.log))
	sources = append(sources, seedsDir)

	e.artifactDir = artifactDir
	e.args = e.assembleArgs(sources, passthrough, artifactDir)
	return nil
}

// assembleArgs produces the engine argument vector in its fixed order.
// User passthrough flags go last so they can override the defaults.
func (e *Executor) assembleArgs(sources, passthrough []string, artifactDir string) []string {
	args := []string{"fuzzkit"}
	args = append(args, sources...)

	if e.cfg.Dictionary != "" {
		args = append(args, "-dict="+e.cfg.Dictionary)
	}

	maxTotalTime, _ := config.DurationToSeconds(e.cfg.MaxDuration)
	args = append(args, fmt.Sprintf("-max_total_time=%d", maxTotalTime))

	if e.cfg.MaxRuns > 0 {
		args = append(args, fmt.Sprintf("-runs=%d", e.cfg.MaxRuns))
	}

	// The engine's memory-limit heuristic is tuned for native-only
	// targets; the driver's targets legitimately use more.
	args = append(args, "-rss_limit_mb=0")

	if e.cfg.ValueProfile {
		args = append(args, "-use_value_profile=1")
	}

	if timeout, ok := e.cfg.TimeoutSeconds(); ok {
		args = append(args, fmt.Sprintf("-timeout=%d", timeout))
	}

	if artifactDir != "" {
		args = append(args, "-artifact_prefix="+artifactDir+string(os.PathSeparator))
	}

	return append(args, passthrough...)
}

func (e *Executor) generatedCorpusDir(baseDir string) string {
	return filepath.Join(baseDir, ".fuzzkit", "corpus", e.target.Class, e.target.Method)
}

// Result is the terminal outcome of one orchestrated run.
type Result struct {
	RunID      string
	ExitCode   int
	Finding    *finding.Finding
	Findings   []finding.Finding
	Executions int64
	Duration   time.Duration
}

// Err reduces the result to the single reported failure: a terminating
// finding takes precedence over a non-zero exit status; otherwise the run
// succeeded.
func (r Result) Err() error {
	if r.Finding != nil {
		return &FindingError{Finding: *r.Finding}
	}
	if r.ExitCode != 0 {
		return &ExitCodeError{Code: r.ExitCode}
	}
	return nil
}

// Execute runs the mutation engine synchronously and reduces its outcome.
// The ephemeral seed directory is torn down on every path once the engine
// returns. The returned error is reserved for failures to run the engine at
// all; everything the run itself produced is in the Result.
func (e *Executor) Execute(ctx context.Context) (Result, error) {
	start := time.Now()
	e.log.Info("starting fuzzing run",
		zap.String("run_id", e.runID),
		zap.String("target", e.target.Class+"."+e.target.Method),
		zap.Strings("args", e.args))

	watchCtx, stopWatch := context.WithCancel(ctx)
	g, _ := errgroup.WithContext(watchCtx)
	if e.artifactDir != "" {
		if w, err := newArtifactWatcher(e.artifactDir, e.log); err != nil {
			e.log.Warn("artifact watcher unavailable", zap.Error(err))
		} else {
			g.Go(func() error {
				w.run(watchCtx)
				return nil
			})
		}
	}

	exit, runErr := e.engine.Run(ctx, e.args, e.testOne)

	stopWatch()
	_ = g.Wait()

	e.seeds.Teardown()

	if runErr != nil {
		return Result{}, fmt.Errorf("executor: running engine: %w", runErr)
	}

	result := Result{
		RunID:      e.runID,
		ExitCode:   exit,
		Finding:    e.findings.Terminating(),
		Findings:   e.findings.Findings(),
		Executions: e.executions.Load(),
		Duration:   time.Since(start),
	}
	e.log.Info("fuzzing run finished",
		zap.String("run_id", e.runID),
		zap.Int("exit_code", result.ExitCode),
		zap.Int64("executions", result.Executions),
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// testOne is the engine's per-iteration callback: lifecycle around one
// target invocation, failures routed into the aggregator.
func (e *Executor) testOne(data []byte) bool {
	e.executions.Add(1)
	if e.target.Invoke == nil {
		return false
	}

	if before := e.target.BeforeEach; before != nil {
		if err := before(); err != nil {
			return e.findings.Observe(fmt.Errorf("before-each callback: %w", err))
		}
	}

	outcome := e.target.Invoke(data)

	if after := e.target.AfterEach; after != nil {
		if err := after(); err != nil && !outcome.Failed() {
			outcome = finding.Failure(fmt.Errorf("after-each callback: %w", err))
		}
	}

	if outcome.Failed() {
		return e.findings.Observe(outcome.Cause())
	}
	return false
}

// AddSeed persists an input surfaced during the run into the ephemeral seed
// directory. A no-op in reproduction mode.
func (e *Executor) AddSeed(data []byte) error {
	return e.seeds.Add(data)
}

// Args returns the assembled engine argument vector.
func (e *Executor) Args() []string {
	return append([]string(nil), e.args...)
}

// SeedDir returns the ephemeral seed directory, empty in reproduction mode.
func (e *Executor) SeedDir() string { return e.seeds.Dir() }

// RunID identifies this run in logs and reports.
func (e *Executor) RunID() string { return e.runID }

func allRegularFiles(paths []string) (bool, error) {
	if len(paths) == 0 {
		return false, nil
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return false, fmt.Errorf("corpus path %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return false, nil
		}
	}
	return true, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// longPath works around the engine's Windows path-length limit for the
// generated corpus directory.
func longPath(p string) string {
	if runtime.GOOS == "windows" {
		return `\\?\` + p
	}
	return p
}
