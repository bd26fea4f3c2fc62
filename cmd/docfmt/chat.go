package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feichai0017/docformat/internal/agent/assistant"
)

func chatCmd() *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Ask the assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			client := assistant.NewClient(assistant.ClientConfigFrom(cfg.Assistant))
			defer client.Close()
			svc := assistant.NewService(client, cfg.Assistant.Fallback, log)

			var messages []assistant.Message
			if system != "" {
				messages = append(messages, assistant.Message{Role: assistant.RoleSystem, Content: system})
			}
			messages = append(messages, assistant.Message{Role: assistant.RoleUser, Content: strings.Join(args, " ")})

			reply, err := svc.Chat(context.Background(), messages)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	return cmd
}
