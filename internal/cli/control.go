package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andthezhang/takopi-swarm/internal/topics"
)

// NewControlCommand groups the control-plane messaging commands.
func NewControlCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "control",
		Short: "Send control-plane messages as the bot",
	}
	cmd.AddCommand(newControlSendCommand(rootOpts))
	return cmd
}

func newControlSendCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		chatID   int64
		threadID int64
		notify   bool
		silent   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a chat message outside any agent run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := rootOpts.loadSettings()
			if err != nil {
				return err
			}
			chat, err := settings.ResolveTargetChatID("", chatID)
			if err != nil {
				return err
			}
			bot, err := rootOpts.client(settings)
			if err != nil {
				return err
			}
			var threadPtr *int64
			if threadID != 0 {
				threadPtr = &threadID
			}
			if silent {
				notify = false
			}

			svc := topics.NewService(bot, nil, rootOpts.logger())
			messageID, err := svc.SendControlMessage(cmd.Context(), chat, threadPtr, args[0], notify)
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: "control message failed", Err: err}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return jsonDump(out, map[string]any{
					"chat_id":    chat,
					"thread_id":  threadPtr,
					"message_id": messageID,
				})
			}
			line := fmt.Sprintf("sent control message to chat %d", chat)
			if threadPtr != nil {
				line += fmt.Sprintf(" thread %d", *threadPtr)
			}
			fmt.Fprintf(out, "%s (message_id=%d)\n", line, messageID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "target chat id (defaults to transport.chat_id)")
	cmd.Flags().Int64Var(&threadID, "thread-id", 0, "target thread id in forum chats")
	cmd.Flags().BoolVar(&notify, "notify", true, "send with notification")
	cmd.Flags().BoolVar(&silent, "silent", false, "send without notification")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	cmd.MarkFlagsMutuallyExclusive("notify", "silent")
	return cmd
}
