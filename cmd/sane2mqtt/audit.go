package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sane2mqtt/internal/audit"
	"github.com/nerrad567/sane2mqtt/internal/bridge"
	"github.com/nerrad567/sane2mqtt/internal/infrastructure/config"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
)

var (
	errAuditPathUnset   = errors.New("audit.path is not set")
	errInvalidOutcome   = errors.New("outcome must be ok, rejected or ignored")
	errInvalidOutputFmt = errors.New("output must be text or json")
)

// auditFlags holds the audit subcommand's filter and output options.
type auditFlags struct {
	command string
	outcome string
	limit   int
	offset  int
	output  string
}

// newAuditCommand builds "sane2mqtt audit", which prints the command log
// recorded by a running bridge. root supplies --config.
func newAuditCommand(root *cliFlags) *cobra.Command {
	flags := &auditFlags{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the recorded command log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout(), getConfigPath(root.configPath), flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.command, "command", "", "only this command (list_devices, set_device, ...)")
	f.StringVar(&flags.outcome, "outcome", "", "only this outcome: ok, rejected or ignored")
	f.IntVar(&flags.limit, "limit", 50, "maximum entries to show (up to 200)")
	f.IntVar(&flags.offset, "offset", 0, "entries to skip")
	f.StringVarP(&flags.output, "output", "o", outputFormatText, "output format: text or json")
	return cmd
}

func runAudit(ctx context.Context, out io.Writer, configPath string, flags *auditFlags) error {
	switch bridge.Outcome(flags.outcome) {
	case "", bridge.OutcomeOK, bridge.OutcomeRejected, bridge.OutcomeIgnored:
	default:
		return fmt.Errorf("%w: %q", errInvalidOutcome, flags.outcome)
	}
	if flags.output != outputFormatText && flags.output != outputFormatJSON {
		return fmt.Errorf("%w: %q", errInvalidOutputFmt, flags.output)
	}

	cfg, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Audit.Path == "" {
		return errAuditPathUnset
	}
	// Never create an empty database for a path nothing has written to.
	if _, err := os.Stat(cfg.Audit.Path); err != nil {
		return fmt.Errorf("audit database: %w", err)
	}

	db, err := openAuditDB(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // read-only use

	result, err := audit.NewSQLiteRepository(db.DB).List(ctx, audit.Filter{
		Command: flags.command,
		Outcome: flags.outcome,
		Limit:   flags.limit,
		Offset:  flags.offset,
	})
	if err != nil {
		return err
	}

	if flags.output == outputFormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printCommandLogs(out, result)
}

func printCommandLogs(out io.Writer, result *audit.ListResult) error {
	if len(result.Logs) == 0 {
		_, err := fmt.Fprintln(out, "No commands recorded.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCOMMAND\tOUTCOME\tPAYLOAD\tDETAIL")
	for _, log := range result.Logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			log.CreatedAt.Local().Format(time.DateTime),
			log.Command,
			log.Outcome,
			log.Payload,
			log.Detail,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "%d of %d commands\n", len(result.Logs), result.Total)
	return err
}
