package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/magicmount/internal/config"
	"github.com/bamsammich/magicmount/internal/event"
	"github.com/bamsammich/magicmount/internal/ksu"
	"github.com/bamsammich/magicmount/internal/logging"
	"github.com/bamsammich/magicmount/internal/module"
	"github.com/bamsammich/magicmount/internal/mount"
	"github.com/bamsammich/magicmount/internal/stats"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds the effective settings after config and flags are merged.
type options struct {
	configPath string
	config.Config
}

func run() int {
	opts := &options{Config: config.Default()}
	rootCmd := newRootCmd(opts)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "magicmount",
		Short: "Overlay module files onto system partitions with bind mounts",
		Long: `Magic mount merges the files shipped by every enabled module under the
module directory into one tree and installs it over the real partitions
using bind mounts. Directories that cannot be overlaid in place are rebuilt
on a private tmpfs and moved over the original.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadOptions(cmd, opts)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMount(opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path (default "+config.DefaultPath+")")
	flags.StringVarP(&opts.ModuleDir, "moduledir", "m", config.DefaultModuleDir, "module directory")
	flags.StringVarP(&opts.TempDir, "tempdir", "t", "", "temp directory (auto-selected if empty)")
	flags.StringVarP(&opts.MountSource, "mountsource", "s", config.DefaultMountSource, "mount source name")
	flags.StringVarP(&opts.LogFile, "logfile", "l", config.DefaultLogFile, "write structured JSON log to FILE")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	flags.StringSliceVarP(&opts.Partitions, "partitions", "p", nil, "extra partitions, comma separated (e.g. mi_ext,my_stock)")
	flags.BoolVar(&opts.Umount, "umount", false, "register mounts with KernelSU try_umount")

	rootCmd.AddCommand(
		newScanCmd(opts),
		newTreeCmd(opts),
		newGenConfigCmd(),
		newShowConfigCmd(opts),
		newVersionCmd(),
		newDocsCmd(),
	)
	return rootCmd
}

// loadOptions reads the config file and applies it under the flags that
// were not set explicitly.
func loadOptions(cmd *cobra.Command, opts *options) error {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return err
		}
	} else if cfg, err = config.LoadDefault(); err != nil {
		slog.Warn("failed to load config, using defaults", "path", config.DefaultPath, "error", err)
		cfg = config.Default()
	}

	applyConfigDefaults(cmd.Flags(), cfg, opts)
	return nil
}

// applyConfigDefaults applies config file values for flags not explicitly
// set on the CLI.
func applyConfigDefaults(flags *pflag.FlagSet, cfg config.Config, opts *options) {
	if !flags.Changed("moduledir") {
		opts.ModuleDir = cfg.ModuleDir
	}
	if !flags.Changed("tempdir") {
		opts.TempDir = cfg.TempDir
	}
	if !flags.Changed("mountsource") {
		opts.MountSource = cfg.MountSource
	}
	if !flags.Changed("logfile") {
		opts.LogFile = cfg.LogFile
	}
	if !flags.Changed("verbose") {
		opts.Verbose = cfg.Verbose
	}
	if !flags.Changed("partitions") {
		opts.Partitions = cfg.Partitions
	}
	if !flags.Changed("umount") {
		opts.Umount = cfg.Umount
	}
}

func runMount(opts *options) error {
	closeLog, err := logging.Setup(logging.Options{Verbose: opts.Verbose, File: opts.LogFile})
	if err != nil {
		closeLog, _ = logging.Setup(logging.Options{Verbose: opts.Verbose}) //nolint:errcheck // no file to open
		slog.Warn("log file unavailable, logging to stderr only", "path", opts.LogFile, "error", err)
	}
	defer closeLog() //nolint:errcheck // best-effort

	slog.Info("magic mount starting", "version", version)
	slog.Info("config",
		"moduledir", opts.ModuleDir,
		"mountsource", opts.MountSource,
		"logfile", opts.LogFile,
		"verbose", opts.Verbose,
		"partitions", opts.Partitions,
		"umount", opts.Umount,
	)

	tempDir := opts.TempDir
	if tempDir == "" {
		if tempDir, err = mount.SelectTempDir(mount.DefaultTempDirCandidates); err != nil {
			slog.Error("magic mount failed", "error", err)
			return &exitError{code: 1}
		}
		slog.Info("temp dir (auto)", "path", tempDir)
	} else {
		slog.Info("temp dir (cfg)", "path", tempDir)
	}

	runCfg := mount.RunConfig{
		ModuleDir:   opts.ModuleDir,
		TempDir:     tempDir,
		MountSource: opts.MountSource,
		Partitions:  opts.Partitions,
		Umount:      opts.Umount,
		Sys:         mount.NewSyscalls(),
	}
	if opts.Umount {
		runCfg.Registrar = ksu.New()
	}

	tree, err := mount.BuildTree(runCfg)
	if err != nil {
		slog.Error("magic mount failed", "error", err)
		return &exitError{code: 1}
	}
	if tree == nil {
		slog.Info("no modules to mount, skipping")
		config.RemoveState()
		return nil
	}
	digest := tree.Digest()
	runCfg.Tree = tree

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	runCfg.Stats = collector
	runCfg.Events = events

	var g errgroup.Group
	g.Go(func() error {
		logEvents(events)
		return nil
	})

	// Diagnostic only: a failed snapshot never affects the mount.
	snapshotDone := make(chan struct{})
	g.Go(func() error {
		return snapshotModuleDir(opts.ModuleDir, snapshotDone)
	})

	err = mount.Run(runCfg)
	close(events)
	close(snapshotDone)
	if gerr := g.Wait(); gerr != nil {
		slog.Debug("module dir snapshot failed", "error", gerr)
	}

	snap := collector.Snapshot()
	slog.Info("mount summary", "stats", snap.String(), "elapsed", snap.Elapsed.Round(time.Millisecond))

	if err != nil {
		slog.Error("magic mount failed", "error", err)
		return &exitError{code: 1}
	}

	modules := module.Scan(opts.ModuleDir, opts.Partitions)
	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = m.ID
	}
	if err := config.WriteState(config.State{
		Digest:    digest,
		MountedAt: time.Now(),
		Modules:   ids,
		Summary:   snap.String(),
	}); err != nil {
		slog.Warn("failed to record run state", "error", err)
	}

	slog.Info("magic mount completed successfully")
	return nil
}

// logEvents drains events into structured debug records.
func logEvents(events <-chan event.Event) {
	for ev := range events {
		attrs := []slog.Attr{
			slog.String("type", ev.Type.String()),
			slog.String("path", ev.Path),
		}
		if ev.Source != "" {
			attrs = append(attrs, slog.String("source", ev.Source))
		}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("error", ev.Error.Error()))
		}
		slog.LogAttrs(context.Background(), slog.LevelDebug, "mount.event", attrs...)
	}
}

// snapshotModuleDir logs the module directory listing at debug level
// unless the run finishes first.
func snapshotModuleDir(dir string, done <-chan struct{}) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	select {
	case <-done:
	default:
		slog.Debug("module dir snapshot", "dir", dir, "entries", names)
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
