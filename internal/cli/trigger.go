package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andthezhang/takopi-swarm/internal/swarm"
)

// NewTriggerCommand groups the trigger-plane commands.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Queue synthetic trigger prompts for the bridge",
	}
	cmd.AddCommand(newTriggerSendCommand(rootOpts))
	return cmd
}

func newTriggerSendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		chatID      int64
		threadID    int64
		originAgent string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Queue a synthetic trigger message into the swarm inbox",
		Args:  cobra.ExactArgs(1),
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
			chat, err := settings.ResolveTargetChatID("", chatID)
			if err != nil {
				return err
			}
			var threadPtr *int64
			if threadID != 0 {
				threadPtr = &threadID
			}
			env, err := swarm.NewEnvelope(swarm.IntentTrigger, chat, threadPtr, args[0], originAgent)
			if err != nil {
				return err
			}
			if err := swarm.AppendEnvelope(ingress.InboxPath, env); err != nil {
				return fmt.Errorf("append to swarm inbox %s: %w", ingress.InboxPath, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return jsonDump(out, map[string]any{
					"event_id":   env.EventID,
					"chat_id":    chat,
					"thread_id":  threadPtr,
					"inbox_path": ingress.InboxPath,
				})
			}
			line := fmt.Sprintf("queued trigger %s for chat %d", env.EventID, chat)
			if threadPtr != nil {
				line += fmt.Sprintf(" thread %d", *threadPtr)
			}
			fmt.Fprintf(out, "%s via %s\n", line, ingress.InboxPath)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "target chat id (defaults to transport.chat_id)")
	cmd.Flags().Int64Var(&threadID, "thread-id", 0, "target thread id in forum chats")
	cmd.Flags().StringVar(&originAgent, "origin-agent", "", "source label written into ingress metadata")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}
