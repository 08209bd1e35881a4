package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// MigrateOptions holds options for the migrate command.
type MigrateOptions struct {
	DryRun bool
	JSON   bool
}

// PlanOutput is the JSON output of migrate --dry-run.
type PlanOutput struct {
	SheetID        string   `json:"sheetId"`
	CurrentVersion string   `json:"currentVersion"`
	TargetVersion  string   `json:"targetVersion"`
	MissingColumns []string `json:"missingColumns"`
	UpToDate       bool     `json:"upToDate"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	opts := &MigrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate <sheet-id>",
		Short: "Bring a sheet's header row up to the current schema",
		Long: `Append the schema columns missing from a sheet's header row and record
the schema version in the sheet. Existing columns are never removed,
renamed or reordered. Running migrate on an up-to-date sheet does nothing.`,
		Example: `  # Migrate one sheet
  bustracker migrate 1AbCdEf

  # Show what would change
  bustracker migrate 1AbCdEf --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runMigrate(cmd, cc, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show the changes without writing them")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	return cmd
}

func runMigrate(cmd *cobra.Command, cc *CommandContext, sheetID string, opts *MigrateOptions) error {
	ctx, cancel := cc.RemoteContext(cmd.Context())
	defer cancel()

	cred, err := cc.Credential(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	jsonOut := useJSON(cc.Cfg, opts.JSON)

	if opts.DryRun {
		plan, err := cc.Engine.Plan(ctx, sheetID, cred)
		if err != nil {
			return err
		}
		out := PlanOutput{
			SheetID:        sheetID,
			CurrentVersion: plan.CurrentVersion.String(),
			TargetVersion:  plan.TargetVersion.String(),
			MissingColumns: plan.MissingColumns,
			UpToDate:       plan.UpToDate(),
		}
		if out.MissingColumns == nil {
			out.MissingColumns = []string{}
		}
		if jsonOut {
			return renderJSON(w, out)
		}
		if out.UpToDate {
			_, _ = fmt.Fprintln(w, "Sheet is up-to-date.")
			return nil
		}
		_, _ = fmt.Fprintf(w, "Would migrate %s from %s to %s\n", sheetID, out.CurrentVersion, out.TargetVersion)
		if len(out.MissingColumns) > 0 {
			_, _ = fmt.Fprintf(w, "Columns to add: %s\n", strings.Join(out.MissingColumns, ", "))
		}
		return nil
	}

	res, err := cc.Engine.Migrate(ctx, sheetID, cred)
	if err != nil {
		return err
	}

	if jsonOut {
		return renderJSON(w, res)
	}
	if !res.Updated {
		_, _ = fmt.Fprintln(w, "Sheet is up-to-date.")
		return nil
	}
	_, _ = fmt.Fprintf(w, "Migrated %s from %s to %s\n", sheetID, res.FromVersion, res.ToVersion)
	if len(res.MissingColumns) > 0 {
		_, _ = fmt.Fprintf(w, "Added columns: %s\n", strings.Join(res.MissingColumns, ", "))
	}
	return nil
}
