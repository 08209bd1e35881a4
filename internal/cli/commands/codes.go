package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/bustracker/internal/accesscode"
)

// maxGenerateCount bounds a single codes generate call.
const maxGenerateCount = 500

// NewCodesCommand creates the codes command and its subcommands.
func NewCodesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage access codes",
		Long: `Generate, check, assign and list the single-use access codes that
gate school provisioning.`,
	}

	cmd.AddCommand(newCodesGenerateCommand())
	cmd.AddCommand(newCodesCheckCommand())
	cmd.AddCommand(newCodesAssignCommand())
	cmd.AddCommand(newCodesListCommand())
	return cmd
}

// GenerateOptions holds options for the codes generate command.
type GenerateOptions struct {
	Count     int
	ExpiresIn time.Duration
	JSON      bool
}

func newCodesGenerateCommand() *cobra.Command {
	opts := &GenerateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate new access codes",
		Example: `  # One code that never expires
  bustracker codes generate

  # Fifty codes valid for two weeks
  bustracker codes generate --count 50 --expires-in 336h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCodesContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runCodesGenerate(cmd, cc, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "Number of codes to generate")
	cmd.Flags().DurationVar(&opts.ExpiresIn, "expires-in", 0, "Lifetime of the codes (0 = never expire)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	return cmd
}

func runCodesGenerate(cmd *cobra.Command, cc *CommandContext, opts *GenerateOptions) error {
	if opts.Count > maxGenerateCount {
		return fmt.Errorf("%w: at most %d codes per call", accesscode.ErrInvalidInput, maxGenerateCount)
	}

	var genOpts []accesscode.GenerateOption
	if opts.ExpiresIn != 0 {
		genOpts = append(genOpts, accesscode.WithExpiry(opts.ExpiresIn))
	}

	codes, err := cc.Codes.GenerateBatch(cmd.Context(), opts.Count, genOpts...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if useJSON(cc.Cfg, opts.JSON) {
		return renderJSON(w, codes)
	}
	for _, c := range codes {
		_, _ = fmt.Fprintln(w, c.Code)
	}
	return nil
}

func newCodesCheckCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check <code>",
		Short: "Check whether an access code can be used",
		Long: `Check whether an access code exists, is unused and has not expired.
Exits non-zero when the code cannot be used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCodesContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runCodesCheck(cmd, cc, args[0], jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runCodesCheck(cmd *cobra.Command, cc *CommandContext, code string, jsonOut bool) error {
	res, err := cc.Codes.Evaluate(cmd.Context(), code)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if useJSON(cc.Cfg, jsonOut) {
		if err := renderJSON(w, res); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(w, "%s (expires: %s)\n", res.Message, expiryText(res))
	}

	if !res.Valid {
		return fmt.Errorf("%w: %w", accesscode.ErrCodeRejected, res.Reason.Err())
	}
	return nil
}

func expiryText(res accesscode.ValidationResult) string {
	if res.Expiry == "" {
		return "-"
	}
	return res.Expiry
}

// AssignOptions holds options for the codes assign command.
type AssignOptions struct {
	Email  string
	School string
	JSON   bool
}

func newCodesAssignCommand() *cobra.Command {
	opts := &AssignOptions{}
	cmd := &cobra.Command{
		Use:   "assign <code>",
		Short: "Bind an access code to a school without provisioning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, cleanup, err := NewCodesContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runCodesAssign(cmd, cc, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "Email of the school administrator")
	cmd.Flags().StringVar(&opts.School, "school", "", "School name")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("school")
	return cmd
}

func runCodesAssign(cmd *cobra.Command, cc *CommandContext, code string, opts *AssignOptions) error {
	assigned, err := cc.Codes.Assign(cmd.Context(), code, opts.Email, opts.School)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if useJSON(cc.Cfg, opts.JSON) {
		return renderJSON(w, assigned)
	}
	_, _ = fmt.Fprintf(w, "Assigned %s to %s (%s)\n", assigned.Code, orDash(assigned.SchoolName), orDash(assigned.UserEmail))
	return nil
}

func newCodesListCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all access codes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCodesContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runCodesList(cmd, cc, jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func runCodesList(cmd *cobra.Command, cc *CommandContext, jsonOut bool) error {
	codes, err := cc.Codes.List(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if useJSON(cc.Cfg, jsonOut) {
		if codes == nil {
			codes = []*accesscode.AccessCode{}
		}
		return renderJSON(w, codes)
	}

	if len(codes) == 0 {
		_, _ = fmt.Fprintln(w, "(0 codes)")
		return nil
	}

	t := newTable(w, "Code", "Status", "School", "Email", "Created", "Expires")
	for _, c := range codes {
		t.AppendRow(table.Row{
			c.Code,
			c.Status,
			orDash(c.SchoolName),
			orDash(c.UserEmail),
			formatTime(&c.CreatedAt),
			formatTime(c.ExpiresAt),
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d codes)\n", len(codes))
	return nil
}
