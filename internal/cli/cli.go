// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, shared flags, and store wiring for chatkeep.

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/errlog"
	"github.com/jeranaias/chatkeep/internal/filestore"
	"github.com/jeranaias/chatkeep/internal/logger"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// skipConfig marks commands that must work without a valid config file.
const skipConfig = "chatkeep.skip-config"

// app holds state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	envFile    string
	jsonOut    bool

	cfg      *config.Config
	logger   *log.Logger
	closeLog func() error
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root, a := newRoot()
	defer a.close()

	err := root.Execute()
	if err != nil {
		if a.jsonOut {
			DisplayError(os.Stdout, err, true)
		} else {
			DisplayError(os.Stderr, err, false)
		}
	}
	return GetExitCode(err)
}

// NewRootCommand builds the chatkeep command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "chatkeep",
		Short: "Local conversation storage for chat front ends",
		Long: `chatkeep keeps chat conversations, model settings, and saved prompts
as JSON files in a local data directory and serves them over HTTP.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default <user config dir>/chatkeep/config.toml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	pf.String("data-dir", "", "directory holding conversations and settings")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.String("log-file", "", "write logs to this file instead of stderr")
	pf.BoolVar(&a.jsonOut, "json", false, "output in JSON format")

	a.bind(pf, config.KeyDataDir, "data-dir")
	a.bind(pf, config.KeyLogLevel, "log-level")
	a.bind(pf, config.KeyLogFile, "log-file")

	root.AddCommand(
		a.serveCommand(),
		a.conversationsCommand(),
		a.searchCommand(),
		a.chatCommand(),
		a.doctorCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root, a
}

// bind ties a flag to a configuration key.
func (a *app) bind(flags *pflag.FlagSet, key, name string) {
	cobra.CheckErr(a.v.BindPFlag(key, flags.Lookup(name)))
}

// setup loads the dotenv file, the configuration, and the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := loadDotEnv(a.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	if cmd.Annotations[skipConfig] == "true" {
		a.cfg = config.Default()
		a.cfg.ApplyOverrides(a.v)
	} else {
		cfg, err := config.Load(a.configPath, a.v)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	l, closeLog, err := logger.New(logger.Options{
		Level:  a.cfg.Log.Level,
		File:   a.cfg.Log.File,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = l
	a.closeLog = closeLog
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing default file is not an error.
func loadDotEnv(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// STORES
// =============================================================================

// stores groups the data directory backends used by commands.
type stores struct {
	root     *filestore.Store
	repo     *storage.Repository
	settings *settings.Store
	errors   *errlog.Sink
}

// openStores opens the repository, settings, and error sink in the data
// directory.
func (a *app) openStores() (*stores, error) {
	root, err := filestore.New(a.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	convFiles, err := root.Sub(storage.DirName)
	if err != nil {
		return nil, err
	}
	repo, err := storage.New(convFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation index: %w", err)
	}

	sink := errlog.New(a.cfg.ErrLog.Capacity)
	if a.cfg.ErrLog.Persist {
		if sink, err = errlog.NewPersistent(a.cfg.ErrLog.Capacity, root); err != nil {
			return nil, fmt.Errorf("failed to load error log: %w", err)
		}
	}

	return &stores{
		root:     root,
		repo:     repo,
		settings: settings.New(root),
		errors:   sink,
	}, nil
}
