// Package cli implements the takopi-swarm command tree. Commands that
// talk to the chat platform (topics ensure, control send) take their
// client from an injected ClientFactory; the stock binary ships
// without one, so those commands report that no transport is wired in
// until a hosting deployment embeds the CLI with its own factory.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andthezhang/takopi-swarm/internal/config"
	"github.com/andthezhang/takopi-swarm/internal/telegram"
)

// BuildInfo is stamped by the build via -ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ClientFactory builds the chat client for commands that talk to the
// platform, typically from transport.bot_token in the settings.
type ClientFactory func(settings *config.Settings) (telegram.Client, error)

// RootOptions holds global flags and injected collaborators shared by
// all commands.
type RootOptions struct {
	ConfigPath string
	NewClient  ClientFactory

	log *slog.Logger
}

// loadSettings reads the config file, validates it, and prepares the
// logger the commands share.
func (o *RootOptions) loadSettings() (*config.Settings, string, error) {
	path := strings.TrimSpace(o.ConfigPath)
	if path == "" {
		path = config.DefaultConfigPath()
	}
	settings, err := config.Load(path)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			return nil, "", err
		}
		return nil, "", config.Errorf("cannot read config %s: %v", path, err)
	}
	logger, err := newLogger(settings.LogFormat, settings.LogLevel)
	if err != nil {
		return nil, "", config.Errorf("invalid config %s: %v", path, err)
	}
	o.log = logger
	return settings, path, nil
}

func (o *RootOptions) logger() *slog.Logger {
	if o.log == nil {
		return slog.Default()
	}
	return o.log
}

func (o *RootOptions) client(settings *config.Settings) (telegram.Client, error) {
	if o.NewClient == nil {
		return nil, exitErrorf(ExitCommandError,
			"no chat transport wired into this build; embed the CLI with a client factory")
	}
	return o.NewClient(settings)
}

// NewRootCommand creates the takopi-swarm root command. clients may be
// nil; commands that need the platform then fail with a wiring hint.
func NewRootCommand(info BuildInfo, clients ClientFactory) *cobra.Command {
	opts := &RootOptions{NewClient: clients}

	cmd := &cobra.Command{
		Use:           "takopi-swarm",
		Short:         "Swarm helpers for topic orchestration and agent triggers",
		Long:          "Manage topic bindings, send control messages, queue synthetic trigger prompts, and tail the swarm inbox of a takopi bridge.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "",
		"config file path (default: "+config.DefaultConfigPath()+")")

	cmd.AddCommand(NewTopicsCommand(opts))
	cmd.AddCommand(NewControlCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewInboxCommand(opts))
	cmd.AddCommand(newVersionCommand(info))

	return cmd
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "takopi-swarm %s (%s) %s\n",
				info.Version, info.Commit, info.BuildTime)
		},
	}
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, info BuildInfo) int {
	root := NewRootCommand(info, nil)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}
