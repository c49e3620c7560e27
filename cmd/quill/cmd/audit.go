package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/quill/api"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log tools",
	Long:  `Commands for inspecting the persisted audit log of content and account changes.`,
}

var (
	auditLimit      int
	auditJSONOutput bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the most recent audit entries",
	Long: `Reads audit entries straight from the configured storage, newest first.
With the bbolt backend the server must be stopped, since it holds the
database lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, closeRepo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		entries, err := api.ReadAuditLog(cmd.Context(), repo, auditLimit)
		if err != nil {
			return fmt.Errorf("reading audit log: %w", err)
		}
		if auditJSONOutput {
			return printAuditJSON(cmd.OutOrStdout(), entries)
		}
		return printAuditTable(cmd.OutOrStdout(), entries)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd)
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "Maximum number of entries (0 for all)")
	auditListCmd.Flags().BoolVar(&auditJSONOutput, "json", false, "Output entries as JSON")
}

func printAuditTable(out io.Writer, entries []api.AuditEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No audit entries.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tACTOR\tTARGET\tREMOTE")
	for _, e := range entries {
		actor := e.Actor
		if actor == "" {
			actor = e.ActorID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Event, dash(actor), dash(e.Target), dash(e.RemoteAddr))
	}
	return tw.Flush()
}

func printAuditJSON(out io.Writer, entries []api.AuditEntry) error {
	if entries == nil {
		entries = []api.AuditEntry{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
