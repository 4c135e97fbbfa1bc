package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gtdetl/internal/config"
	"gtdetl/internal/logging"
	"gtdetl/internal/profile"
	"gtdetl/internal/star"
)

// app is the state shared by the commands of one invocation.
type app struct {
	deps   appDeps
	stdout io.Writer
	stderr io.Writer

	v       *viper.Viper
	cfgPath string
	verbose bool

	pipeline config.Pipeline
	log      *zap.Logger
	runID    string
}

func newRootCommand(stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	a := &app{deps: deps, stdout: stdout, stderr: stderr, v: config.NewViper()}

	root := &cobra.Command{
		Use:   "etl",
		Short: "etl - Global Terrorism Database star-schema loader",
		Long: `Reads GTD incidents from CSV, JSON or MongoDB, models them as a star
schema (six dimensions, the attack fact table and the incident/weapon
bridge) and loads it into SQLite, PostgreSQL or SQL Server.

Settings come from --config, GTDETL_* environment variables (a .env file
is honored) and the flags below, flags winning.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.load() },
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &usageError{err: err} })

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "pipeline config (JSON or YAML)")
	pf.String("dsn", "", "storage DSN (overrides storage.dsn)")
	pf.String("storage", "", "storage kind: sqlite|postgres|mssql (overrides storage.kind)")
	pf.String("metrics-backend", "", "metrics backend: none|pushgateway|datadog")
	pf.String("pushgateway-url", "", "Pushgateway base URL (overrides metrics.pushgateway_url)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	mustBind(a.v, pf, map[string]string{
		"storage.dsn":             "dsn",
		"storage.kind":            "storage",
		"metrics.backend":         "metrics-backend",
		"metrics.pushgateway_url": "pushgateway-url",
	})

	root.AddCommand(
		a.runCommand(),
		a.profileCommand(),
		a.reconstructCommand(),
		a.schemaCommand(),
		a.validateCommand(),
	)
	return root
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}

// load reads the environment and config document and builds the logger.
func (a *app) load() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	p, err := config.LoadWith(a.v, a.cfgPath)
	if err != nil {
		return err
	}
	a.pipeline = p

	level := p.Log.Level
	if a.verbose {
		level = "debug"
	}
	log, err := logging.NewWithWriter(level, p.Log.Format, a.stderr)
	if err != nil {
		return err
	}
	a.runID = uuid.NewString()
	a.log = log.With(zap.String("job", p.Job))
	return nil
}

// checkConfig logs every config issue and fails on errors.
func (a *app) checkConfig() error {
	issues := config.ValidatePipeline(a.pipeline)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError {
			a.log.Error("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
		} else {
			a.log.Warn("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
		}
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid: %s", a.configName())
	}
	return nil
}

func (a *app) configName() string {
	if a.cfgPath == "" {
		return "(defaults)"
	}
	return a.cfgPath
}

func (a *app) runner() runner { return a.deps.newRunner(a.log, a.runID) }

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "read the source, rebuild the star and reload the store",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.checkConfig(); err != nil {
				return err
			}
			ctx := cmd.Context()
			start := time.Now()

			cleanup, err := a.deps.initMetrics(ctx, a.pipeline, a.runID, a.log)
			defer cleanup()
			if err != nil {
				return err
			}

			a.log.Debug("pipeline",
				zap.String("source", a.pipeline.Source.Kind),
				zap.String("storage", a.pipeline.Storage.Kind),
				zap.Bool("atomic_reload", a.pipeline.Runtime.AtomicReload))

			res, err := a.runner().Run(ctx, a.pipeline)
			if err != nil {
				return err
			}
			a.log.Info("completed", zap.String("run_id", res.RunID), zap.Duration("duration", logging.Dur(start)))

			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func (a *app) profileCommand() *cobra.Command {
	var (
		format string
		out    string
		opt    profile.Options
	)
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "report source data quality without touching the store",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch strings.ToLower(format) {
			case "text", "json", "yaml", "yml":
			default:
				return usagef("unknown --format %q (want text|json|yaml)", format)
			}
			if err := a.checkConfig(); err != nil {
				return err
			}

			rep, err := a.runner().Profile(cmd.Context(), a.pipeline, opt)
			if err != nil {
				return err
			}
			return writeTo(a.stdout, out, func(w io.Writer) error {
				return profile.Write(w, rep, format)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", "text", "output format: text|json|yaml")
	f.StringVarP(&out, "out", "o", "", "write the report to this file instead of stdout")
	f.IntVar(&opt.DistinctCap, "distinct-cap", profile.DefaultDistinctCap, "distinct values tracked per column")
	f.StringVar(&opt.KeyColumn, "key", profile.DefaultKeyColumn, "column checked for duplicates")
	return cmd
}

func (a *app) reconstructCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "join the star back into one CSV row per incident and weapon",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.checkConfig(); err != nil {
				return err
			}
			rs, err := a.runner().Reconstruct(cmd.Context(), a.pipeline)
			if err != nil {
				return err
			}
			return writeTo(a.stdout, out, func(w io.Writer) error {
				return writeCSV(w, rs)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write CSV to this file instead of stdout")
	return cmd
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "create any missing star table and exit",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.checkConfig(); err != nil {
				return err
			}
			if err := a.runner().EnsureSchema(cmd.Context(), a.pipeline); err != nil {
				return err
			}
			names := make([]string, 0, len(star.Tables()))
			for _, t := range star.Tables() {
				names = append(names, t.Name)
			}
			_, err := fmt.Fprintf(a.stdout, "tables ready: %s\n", strings.Join(names, ", "))
			return err
		},
	}
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "check the configuration and exit",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.ValidatePipeline(a.pipeline)
			for _, iss := range issues {
				fmt.Fprintln(a.stdout, iss.String())
			}
			if config.HasErrors(issues) {
				return fmt.Errorf("configuration is invalid: %s", a.configName())
			}
			_, err := fmt.Fprintf(a.stdout, "configuration is valid: %s\n", a.configName())
			return err
		},
	}
}

// writeTo runs write against path, or against stdout when path is empty.
func writeTo(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
