package commands

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/bustracker/internal/cli/config"
	"github.com/leapstack-labs/bustracker/internal/schema"
	"github.com/leapstack-labs/bustracker/internal/state"
)

// Health check statuses.
const (
	StatusPass  = "pass"
	StatusWarn  = "warn"
	StatusError = "error"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	JSON bool
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the installation for configuration problems",
		Long: `Check the configuration, the schema file, the access code database
and the Google settings, and report what needs attention before serving.`,
		Example: `  # Run health check
  bustracker doctor

  # Output as JSON
  bustracker doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	HealthChecks []HealthCheck `json:"health_checks"`
	Score        int           `json:"score"`
	IssueCount   int           `json:"issue_count"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "warn", "error"
	Details string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cfg := configFrom(cmd)
	out := buildDoctorOutput(cmd.Context(), cfg)

	w := cmd.OutOrStdout()
	if useJSON(cfg, opts.JSON) {
		return renderJSON(w, out)
	}

	t := newTable(w, "Check", "Status", "Details")
	for _, hc := range out.HealthChecks {
		t.AppendRow(table.Row{hc.Name, hc.Status, hc.Details})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "Health score: %d/100 (%d issues)\n", out.Score, out.IssueCount)
	return nil
}

func buildDoctorOutput(ctx context.Context, cfg *config.Config) *DoctorOutput {
	checks := []HealthCheck{
		checkConfigFile(cfg),
		checkSchema(ctx, cfg),
		checkState(ctx, cfg),
		checkSheetStore(cfg),
		checkTemplate(cfg),
		checkCredentials(cfg),
		checkSessionSecret(cfg),
	}

	issues := 0
	for _, hc := range checks {
		if hc.Status != StatusPass {
			issues++
		}
	}

	return &DoctorOutput{
		HealthChecks: checks,
		Score:        calculateHealthScore(checks),
		IssueCount:   issues,
	}
}

// calculateHealthScore starts from 100 and deducts 25 per error and 10 per
// warning, never going below zero.
func calculateHealthScore(checks []HealthCheck) int {
	score := 100
	for _, hc := range checks {
		switch hc.Status {
		case StatusError:
			score -= 25
		case StatusWarn:
			score -= 10
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func checkConfigFile(cfg *config.Config) HealthCheck {
	hc := HealthCheck{Name: "config file", Status: StatusPass, Details: cfg.ConfigFile}
	if cfg.ConfigFile == "" {
		hc.Status = StatusWarn
		hc.Details = "no bustracker.yaml found; using defaults and environment"
	}
	return hc
}

func checkSchema(ctx context.Context, cfg *config.Config) HealthCheck {
	hc := HealthCheck{Name: "schema"}
	def, err := schema.NewFileSource(cfg.SchemaPath).Load(ctx)
	if err != nil {
		hc.Status = StatusError
		hc.Details = err.Error()
		return hc
	}
	hc.Status = StatusPass
	hc.Details = fmt.Sprintf("version %s, %d columns", def.Version, len(def.Columns))
	return hc
}

func checkState(ctx context.Context, cfg *config.Config) HealthCheck {
	hc := HealthCheck{Name: "access code database"}
	st, _, err := openCodes(ctx, cfg, nil)
	if err != nil {
		hc.Status = StatusError
		hc.Details = err.Error()
		return hc
	}
	defer func() { _ = st.Close() }()

	version, err := st.MigrationVersion(ctx)
	if err != nil {
		hc.Status = StatusError
		hc.Details = err.Error()
		return hc
	}
	hc.Status = StatusPass
	hc.Details = fmt.Sprintf("%s, migration version %d", st.Dialect(), version)
	if st.Dialect() == state.DialectSQLite && cfg.StateFile() == "" {
		hc.Status = StatusWarn
		hc.Details += "; in-memory database, codes are lost on exit"
	}
	return hc
}

func checkSheetStore(cfg *config.Config) HealthCheck {
	if cfg.Sheets.Store == config.StoreMemory {
		return HealthCheck{Name: "sheet store", Status: StatusWarn, Details: "in-memory store, sheets are lost on exit"}
	}
	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return HealthCheck{Name: "sheet store", Status: StatusWarn, Details: "google.client_id/client_secret not set; OAuth sign-in disabled"}
	}
	return HealthCheck{Name: "sheet store", Status: StatusPass, Details: "google"}
}

func checkTemplate(cfg *config.Config) HealthCheck {
	hc := HealthCheck{Name: "master template", Status: StatusPass, Details: cfg.Google.MasterTemplateID}
	if cfg.Google.MasterTemplateID == "" {
		if cfg.Sheets.Store == config.StoreMemory {
			hc.Details = config.DefaultMemoryTemplate
			return hc
		}
		hc.Status = StatusError
		hc.Details = "google.master_template_id not set; provisioning will fail"
	}
	return hc
}

func checkCredentials(cfg *config.Config) HealthCheck {
	hc := HealthCheck{Name: "cli credentials", Status: StatusPass, Details: "refresh token configured"}
	if cfg.Sheets.Store == config.StoreMemory {
		hc.Details = "not needed for the in-memory store"
		return hc
	}
	if cfg.Google.RefreshToken == "" {
		hc.Status = StatusWarn
		hc.Details = "google.refresh_token not set; migrate, provision and schema extract need it"
	}
	return hc
}

func checkSessionSecret(cfg *config.Config) HealthCheck {
	if cfg.Server.SessionSecret == "" {
		return HealthCheck{Name: "session secret", Status: StatusWarn, Details: "server.session_secret not set; sessions reset on restart"}
	}
	return HealthCheck{Name: "session secret", Status: StatusPass}
}
