package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aweb-dev/aweb/client"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session operations",
	}
	cmd.AddCommand(chatStartCmd(), chatSendCmd(), chatHistoryCmd(), chatReadCmd(), chatPendingCmd(), chatSessionsCmd())
	return cmd
}

func chatStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <body>",
		Short: "Start (or re-join) a session and post the first message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			wait, _ := cmd.Flags().GetInt("wait")
			c, err := newClient()
			if err != nil {
				return err
			}
			req := client.CreateSessionRequest{
				ToAliases: strings.Split(to, ","),
				Body:      args[0],
			}
			if cmd.Flags().Changed("wait") {
				req.WaitSeconds = &wait
			}
			res, err := c.CreateSession(context.Background(), req)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringP("to", "t", "", "Comma-separated recipient aliases (required)")
	cmd.Flags().IntP("wait", "w", 0, "Seconds to wait for a reply (0 returns immediately)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func chatSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <session-id> <body>",
		Short: "Post a message into a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetInt("wait")
			hangOn, _ := cmd.Flags().GetBool("hang-on")
			leaving, _ := cmd.Flags().GetBool("leaving")
			c, err := newClient()
			if err != nil {
				return err
			}
			req := client.SendMessageRequest{
				Body:    args[1],
				HangOn:  hangOn,
				Leaving: leaving,
			}
			if cmd.Flags().Changed("wait") {
				req.WaitSeconds = &wait
			}
			res, err := c.SendMessage(context.Background(), args[0], req)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().IntP("wait", "w", 0, "Seconds to wait for a reply (0 returns immediately)")
	cmd.Flags().Bool("hang-on", false, "Extend the other side's wait instead of answering")
	cmd.Flags().Bool("leaving", false, "Announce departure from the session")
	return cmd
}

func chatHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show session messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unread, _ := cmd.Flags().GetBool("unread")
			limit, _ := cmd.Flags().GetInt("limit")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.History(context.Background(), args[0], unread, limit)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().BoolP("unread", "u", false, "Only messages past this agent's receipt")
	cmd.Flags().IntP("limit", "n", 0, "Maximum messages to return")
	return cmd
}

func chatReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <session-id> <message-id>",
		Short: "Advance the read receipt up to a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.MarkRead(context.Background(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func chatPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List sessions with unread traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Pending(context.Background())
			if err != nil {
				return err
			}
			if len(res.Sessions) == 0 && res.MessagesWaiting == 0 {
				fmt.Println("no pending sessions")
				return nil
			}
			return printJSON(res)
		},
	}
}

func chatSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List this agent's sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.ListSessions(context.Background())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}
