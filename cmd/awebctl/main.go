package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aweb-dev/aweb/client"
)

var (
	apiFlag string
	keyFlag string
	rootCmd = &cobra.Command{
		Use:   "awebctl",
		Short: "CLI client for the aweb coordination REST API",
	}
)

func newClient() (*client.Client, error) {
	key := keyFlag
	if key == "" {
		key = os.Getenv("AWEB_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("--key or AWEB_API_KEY required")
	}
	return client.New(apiFlag, key)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "aweb service base URL")
	rootCmd.PersistentFlags().StringVarP(&keyFlag, "key", "k", "", "API key (defaults to AWEB_API_KEY)")

	rootCmd.AddCommand(initCmd(), whoamiCmd(), agentsCmd(), heartbeatCmd(), contactsCmd())
	rootCmd.AddCommand(sendCmd(), inboxCmd(), ackCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(reserveCmd(), renewCmd(), releaseCmd(), revokeCmd(), reservationsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a project and agent identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, _ := cmd.Flags().GetString("project")
			alias, _ := cmd.Flags().GetString("alias")
			name, _ := cmd.Flags().GetString("name")
			accessMode, _ := cmd.Flags().GetString("access-mode")
			res, err := client.Init(context.Background(), apiFlag, client.InitRequest{
				ProjectSlug: project,
				Alias:       alias,
				HumanName:   name,
				AccessMode:  accessMode,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringP("project", "p", "", "Project slug (required)")
	cmd.Flags().String("alias", "", "Requested alias (empty picks a free classic name)")
	cmd.Flags().String("name", "", "Human-readable name")
	cmd.Flags().String("access-mode", "", "open or contacts_only")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Introspect(context.Background())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List project agents with presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.ListAgents(context.Background())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func heartbeatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Refresh this agent's presence window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.Heartbeat(context.Background()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the project's contact allow-list",
	}
	addCmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Allow-list a sender address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.AddContact(context.Background(), args[0], label)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	addCmd.Flags().String("label", "", "Optional display label")
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List allow-list entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.ListContacts(context.Background())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	rmCmd := &cobra.Command{
		Use:   "rm <contact-id>",
		Short: "Remove an allow-list entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.RemoveContact(context.Background(), args[0])
		},
	}
	cmd.AddCommand(addCmd, listCmd, rmCmd)
	return cmd
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <body>",
		Short: "Send durable mail to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			subject, _ := cmd.Flags().GetString("subject")
			priority, _ := cmd.Flags().GetString("priority")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.SendMail(context.Background(), client.SendMailRequest{
				ToAlias:  to,
				Subject:  subject,
				Body:     args[0],
				Priority: priority,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringP("to", "t", "", "Recipient alias (required)")
	cmd.Flags().StringP("subject", "s", "", "Subject line")
	cmd.Flags().String("priority", "", "low, normal, high, or urgent")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List received mail, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			unread, _ := cmd.Flags().GetBool("unread")
			limit, _ := cmd.Flags().GetInt("limit")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Inbox(context.Background(), unread, limit)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().BoolP("unread", "u", false, "Only unread messages")
	cmd.Flags().IntP("limit", "n", 0, "Maximum messages to return")
	return cmd
}

func ackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <message-id>",
		Short: "Acknowledge a mail message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			at, err := c.AckMail(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(at.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
}

func reserveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reserve <resource-key>",
		Short: "Acquire a lease on a resource key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetInt("ttl")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Acquire(context.Background(), args[0], ttl, nil)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().Int("ttl", 0, "Lease TTL in seconds (0 uses server default)")
	return cmd
}

func renewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renew <resource-key>",
		Short: "Extend a lease this agent holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetInt("ttl")
			c, err := newClient()
			if err != nil {
				return err
			}
			expiresAt, err := c.Renew(context.Background(), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(expiresAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().Int("ttl", 0, "Lease TTL in seconds (0 uses server default)")
	return cmd
}

func releaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <resource-key>",
		Short: "Release a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			released, err := c.Release(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(released)
			return nil
		},
	}
}

func revokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Release every lease this agent holds under a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			c, err := newClient()
			if err != nil {
				return err
			}
			n, err := c.Revoke(context.Background(), prefix)
			if err != nil {
				return err
			}
			fmt.Printf("revoked %d\n", n)
			return nil
		},
	}
	cmd.Flags().String("prefix", "", "Resource key prefix (empty revokes all)")
	return cmd
}

func reservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List the project's live leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, _ := cmd.Flags().GetString("prefix")
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.ListReservations(context.Background(), prefix)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().String("prefix", "", "Resource key prefix filter")
	return cmd
}
