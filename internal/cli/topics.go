package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andthezhang/takopi-swarm/internal/topics"
)

// NewTopicsCommand groups the topic binding commands.
func NewTopicsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Inspect and reconcile tracked topic bindings",
	}
	cmd.AddCommand(newTopicsListCommand(rootOpts))
	cmd.AddCommand(newTopicsStatusCommand(rootOpts))
	cmd.AddCommand(newTopicsEnsureCommand(rootOpts))
	return cmd
}

func newTopicsListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		chatID int64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked topics from topic state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, cfgPath, err := rootOpts.loadSettings()
			if err != nil {
				return err
			}
			store, err := topics.Open(settings.EffectiveStatePath(cfgPath))
			if err != nil {
				return err
			}
			defer store.Close()

			statuses, err := topics.ListTopicStatuses(cmd.Context(), store, chatID, settings.ProjectAliases())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return jsonDump(out, statuses)
			}
			if len(statuses) == 0 {
				fmt.Fprintln(out, "no tracked topics")
				return nil
			}
			for _, st := range statuses {
				echoStatusLine(out, st)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "filter tracked topics by chat id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

func newTopicsStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		chatID   int64
		threadID int64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a single topic thread status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, cfgPath, err := rootOpts.loadSettings()
			if err != nil {
				return err
			}
			store, err := topics.Open(settings.EffectiveStatePath(cfgPath))
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.GetThread(cmd.Context(), chatID, threadID)
			if err != nil {
				return err
			}
			if snap == nil {
				return exitErrorf(ExitFailure, "topic not found")
			}
			st := topics.SnapshotToStatus(*snap, settings.ProjectAliases())
			out := cmd.OutOrStdout()
			if asJSON {
				return jsonDump(out, st)
			}
			echoStatusLine(out, st)
			return nil
		},
	}

	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "chat id")
	cmd.Flags().Int64Var(&threadID, "thread-id", 0, "thread id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("chat-id")
	_ = cmd.MarkFlagRequired("thread-id")
	return cmd
}

func newTopicsEnsureCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		project   string
		branch    string
		chatID    int64
		bindState bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Ensure a forum topic exists for a project/branch context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, cfgPath, err := rootOpts.loadSettings()
			if err != nil {
				return err
			}
			projectID, proj, err := settings.ResolveProject(project)
			if err != nil {
				return err
			}
			chat, err := settings.ResolveTargetChatID(projectID, chatID)
			if err != nil {
				return err
			}
			bot, err := rootOpts.client(settings)
			if err != nil {
				return err
			}
			statePath := settings.EffectiveStatePath(cfgPath)
			store, err := topics.Open(statePath)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := topics.NewService(bot, store, rootOpts.logger())
			st, created, err := svc.EnsureTopicThread(cmd.Context(), topics.EnsureParams{
				ChatID:       chat,
				Project:      projectID,
				ProjectAlias: proj.Alias,
				Branch:       branch,
				BindState:    bindState,
			})
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "ensure topic", Err: err}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return jsonDump(out, map[string]any{
					"created":    created,
					"status":     st,
					"state_path": statePath,
				})
			}
			action := "reused"
			if created {
				action = "created"
			}
			name := st.Project
			if name == "" {
				name = proj.Alias
			}
			line := fmt.Sprintf("%s topic %d:%d for %s", action, st.ChatID, st.ThreadID, name)
			if st.Branch != "" {
				line += " @" + st.Branch
			}
			fmt.Fprintln(out, line)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project alias/id")
	cmd.Flags().StringVar(&branch, "branch", "", "optional branch name for the topic binding")
	cmd.Flags().Int64Var(&chatID, "chat-id", 0, "target chat id (defaults to project chat_id or transport.chat_id)")
	cmd.Flags().BoolVar(&bindState, "bind-state", true, "persist the topic->context binding in topic state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}
