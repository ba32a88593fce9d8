package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fuzzkit/internal/config"
	"fuzzkit/internal/engine"
	"fuzzkit/internal/executor"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fuzzkit",
	Short: "fuzzkit - coverage-guided fuzz-execution driver",
	Long: `fuzzkit drives an external coverage-guided mutation engine against a
fuzz target: it discovers corpus and seed directories, translates the run
configuration into the engine's argument vector, and reduces the engine's
outcome plus captured findings into a single result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var (
	runEngine       string
	runClass        string
	runMethod       string
	runCorpus       []string
	runInputsDir    string
	runDict         string
	runMaxDuration  string
	runMaxRuns      int64
	runKeepGoing    int
	runValueProfile bool
)

var runCmd = &cobra.Command{
	Use:   "run [-- engine passthrough args]",
	Short: "Run one fuzzing campaign against a target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg, args)

		if cfg.Engine.Binary == "" {
			return errors.New("an engine binary is required (--engine or engine.binary in the config)")
		}

		target := executor.Target{Class: runClass, Method: runMethod}
		eng := &engine.ExecEngine{Path: cfg.Engine.Binary, Log: logger}

		exec, err := executor.Prepare(cfg, target, eng, executor.WithLogger(logger))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := exec.Execute(ctx)
		if err != nil {
			return err
		}
		return report(result)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "fuzzkit.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.DefaultConfig(), nil
}

// applyRunFlags lets command-line flags override the config file, and passes
// everything after -- through to the engine.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, passthrough []string) {
	if cmd.Flags().Changed("engine") {
		cfg.Engine.Binary = runEngine
	}
	if cmd.Flags().Changed("max-duration") {
		cfg.MaxDuration = runMaxDuration
	}
	if cmd.Flags().Changed("runs") {
		cfg.MaxRuns = runMaxRuns
	}
	if cmd.Flags().Changed("keep-going") {
		cfg.KeepGoing = runKeepGoing
	}
	if cmd.Flags().Changed("dict") {
		cfg.Dictionary = runDict
	}
	if cmd.Flags().Changed("value-profile") {
		cfg.ValueProfile = runValueProfile
	}
	if cmd.Flags().Changed("inputs") {
		cfg.Corpus.InputsDir = runInputsDir
	}
	if len(runCorpus) > 0 {
		cfg.Corpus.Dirs = append(cfg.Corpus.Dirs, runCorpus...)
	}
	cfg.Engine.Args = append(cfg.Engine.Args, passthrough...)
}

func report(result executor.Result) error {
	for _, f := range result.Findings {
		logger.Warn("finding",
			zap.Int("ordinal", f.Ordinal),
			zap.Bool("terminating", f.Terminating),
			zap.NamedError("cause", f.Cause))
	}

	err := result.Err()
	switch {
	case err == nil:
		logger.Info("run succeeded",
			zap.String("run_id", result.RunID),
			zap.Duration("duration", result.Duration))
		return nil
	default:
		return err
	}
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to fuzzkit.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd.Flags().StringVar(&runEngine, "engine", "", "path to the mutation engine binary")
	runCmd.Flags().StringVar(&runClass, "class", "", "target class/type name")
	runCmd.Flags().StringVar(&runMethod, "method", "", "target method name")
	runCmd.Flags().StringArrayVar(&runCorpus, "corpus", nil, "corpus file or directory (repeatable)")
	runCmd.Flags().StringVar(&runInputsDir, "inputs", "", "read-only regression inputs directory")
	runCmd.Flags().StringVar(&runDict, "dict", "", "dictionary file")
	runCmd.Flags().StringVar(&runMaxDuration, "max-duration", "", "maximum total run duration (e.g. 5m)")
	runCmd.Flags().Int64Var(&runMaxRuns, "runs", 0, "maximum number of engine iterations (0 = unbounded)")
	runCmd.Flags().IntVar(&runKeepGoing, "keep-going", 1, "findings to tolerate before stopping (0 = never stop)")
	runCmd.Flags().BoolVar(&runValueProfile, "value-profile", false, "enable value-profile guidance")
	_ = runCmd.MarkFlagRequired("class")
	_ = runCmd.MarkFlagRequired("method")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
