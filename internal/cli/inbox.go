package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andthezhang/takopi-swarm/internal/lockfile"
	"github.com/andthezhang/takopi-swarm/internal/swarm"
)

// NewInboxCommand groups commands that work on the swarm inbox queue
// file directly.
func NewInboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Work with the swarm inbox queue file",
	}
	cmd.AddCommand(newInboxTailCommand(rootOpts))
	return cmd
}

func newInboxTailCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Consume the swarm inbox and print each synthetic message",
		Long: `Consume the swarm inbox and print each synthetic message.

Takes the inbox consumer lock, so it cannot run while a bridge is
draining the same inbox. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, cfgPath, err := rootOpts.loadSettings()
			if err != nil {
				return err
			}
			ingress := settings.SwarmIngress(cfgPath)
			if ingress == nil {
				return exitErrorf(ExitCommandError,
					"swarm trigger ingress is disabled; set `swarm.enabled: true` in %s", cfgPath)
			}
			lock, err := lockfile.Acquire(lockfile.ForQueue(ingress.InboxPath))
			if err != nil {
				if errors.Is(err, lockfile.ErrAlreadyLocked) {
					return exitErrorf(ExitFailure, "another process is already consuming %s", ingress.InboxPath)
				}
				return err
			}
			defer func() { _ = lock.Release() }()

			if isTerminalWriter(cmd.ErrOrStderr()) {
				fmt.Fprintf(cmd.ErrOrStderr(), "tailing %s (ctrl-c to stop)\n", ingress.InboxPath)
			}

			poller := swarm.NewPoller(*ingress, rootOpts.logger())
			out := cmd.OutOrStdout()
			for msg := range poller.Messages(cmd.Context()) {
				if asJSON {
					if err := jsonDump(out, msg); err != nil {
						return err
					}
					continue
				}
				thread := "-"
				if msg.ThreadID != nil {
					thread = strconv.FormatInt(*msg.ThreadID, 10)
				}
				origin := msg.OriginAgent
				if origin == "" {
					origin = "-"
				}
				fmt.Fprintf(out, "%d  chat=%d  thread=%s  origin=%s  text=%q\n",
					msg.MessageID, msg.ChatID, thread, origin, msg.Text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON lines")
	return cmd
}
