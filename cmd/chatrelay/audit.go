package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatrelay-ai/chatrelay/pkg/audit"
	"github.com/chatrelay-ai/chatrelay/pkg/config"
	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the request audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Audit.DBPath == "" {
		return nil, nil, fmt.Errorf("audit db_path not configured")
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		userPrefix string
		providerN  string
		outcome    string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				UserPrefix: userPrefix,
				Provider:   providerN,
				Outcome:    outcome,
				Limit:      limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No audit entries found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tREQUEST ID\tUSER\tPROVIDER\tOUTCOME\tLATENCY")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s...\t%s\t%s\t%dms\n",
					e.CreatedAt.Format("2006-01-02T15:04:05"),
					shortID(e.RequestID), e.UserPrefix, e.Provider, e.Outcome, e.LatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chatrelay.yaml", "path to config file")
	cmd.Flags().StringVar(&userPrefix, "user", "", "filter by user ID prefix")
	cmd.Flags().StringVar(&providerN, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, cached, denied, blocked, error)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var (
		configPath string
		requestID  string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a single audit entry by request ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestID == "" {
				return fmt.Errorf("--request-id is required")
			}

			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: requestID,
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that request ID.")
				return nil
			}

			e := entries[0]
			fmt.Printf("Request ID:  %s\n", e.RequestID)
			fmt.Printf("User:        %s...\n", e.UserPrefix)
			fmt.Printf("Provider:    %s\n", e.Provider)
			fmt.Printf("Category:    %s\n", e.Category)
			fmt.Printf("Outcome:     %s\n", e.Outcome)
			if e.Reason != "" {
				fmt.Printf("Reason:      %s\n", e.Reason)
			}
			fmt.Printf("Latency:     %dms\n", e.LatencyMs)
			fmt.Printf("Created:     %s\n", e.CreatedAt.Format(time.RFC3339))
			if e.Prompt != "" {
				fmt.Printf("\nPrompt:\n%s\n", e.Prompt)
			}
			if e.Response != "" {
				fmt.Printf("\nResponse:\n%s\n", e.Response)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chatrelay.yaml", "path to config file")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID to show")

	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "chatrelay.yaml", "path to config file")
	return cmd
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
