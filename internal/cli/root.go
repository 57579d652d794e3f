// Package cli implements the cutty command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cutty/internal/config"
	"cutty/internal/logging"
	"cutty/internal/repository"
)

// app carries state shared by all commands of one invocation.
type app struct {
	out io.Writer

	fetchMode string
	cacheDir  string
	verbosity int

	cfg         *config.Config
	logger      *logging.AppLogger
	credentials *repository.CredentialManager
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:   "cutty",
		Short: "Create and update projects from templates",
		Long: `cutty generates projects from templates and keeps them in sync as the
templates evolve. Template changes are applied to a project's git history
with cherry-picks, so local edits are preserved.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.fetchMode, "fetch-mode", "", "when to fetch remote templates: always, auto or never")
	rootCmd.PersistentFlags().StringVar(&a.cacheDir, "cache-dir", "", "directory for fetched templates")
	rootCmd.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity")

	rootCmd.AddCommand(newCreateCmd(a))
	rootCmd.AddCommand(newUpdateCmd(a))
	rootCmd.AddCommand(newLinkCmd(a))
	rootCmd.AddCommand(newCacheCmd(a))
	rootCmd.AddCommand(newAuthCmd(a))

	return rootCmd
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	if a.verbosity > 0 {
		a.logger = logging.NewWriterLogger(cmd.ErrOrStderr(), a.verbosity)
	} else {
		a.logger = logging.NewAppLogger()
	}
	a.logger.Debug("Command started", "command", cmd.CommandPath())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.fetchMode != "" {
		cfg.FetchMode = a.fetchMode
	}
	if a.cacheDir != "" {
		cfg.CacheDir = a.cacheDir
	}
	if _, err := cfg.Mode(); err != nil {
		return err
	}
	a.cfg = cfg
	a.credentials = repository.NewCredentialManager()
	return nil
}

func (a *app) storage() *repository.Storage {
	return repository.NewStorage(a.cfg.CacheDir, repository.WithStorageLogger(a.logger))
}

func (a *app) registry() (*repository.Registry, error) {
	mode, err := a.cfg.Mode()
	if err != nil {
		return nil, err
	}

	factories, err := repository.SelectFactories(repository.DefaultFactories(repository.Options{
		Logger:      a.logger,
		Credentials: a.credentials,
	}), a.cfg.Providers)
	if err != nil {
		return nil, err
	}

	return repository.NewRegistry(factories, a.storage(), mode, a.logger), nil
}

func (a *app) cacheMaxAge() time.Duration {
	return time.Duration(a.cfg.CacheMaxAge)
}
