package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/bustracker/internal/provision"
)

// ProvisionOptions holds options for the provision command.
type ProvisionOptions struct {
	Code   string
	Email  string
	School string
	JSON   bool
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand() *cobra.Command {
	opts := &ProvisionOptions{}
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create a school's sheet from the master template",
		Long: `Validate an access code, copy the master template for the school,
bind the code to the school and migrate the new sheet to the current schema.`,
		Example: `  bustracker provision --code 3f9a1c2b7d4e --email admin@lincoln.edu --school "Lincoln High"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return runProvision(cmd, cc, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Code, "code", "", "Access code")
	cmd.Flags().StringVar(&opts.Email, "email", "", "Email of the school administrator")
	cmd.Flags().StringVar(&opts.School, "school", "", "School name")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("school")
	return cmd
}

func runProvision(cmd *cobra.Command, cc *CommandContext, opts *ProvisionOptions) error {
	ctx, cancel := cc.RemoteContext(cmd.Context())
	defer cancel()

	cred, err := cc.Credential(ctx)
	if err != nil {
		return err
	}

	res, err := cc.Orchestrator.Provision(ctx, provision.Request{
		Code:       opts.Code,
		Email:      opts.Email,
		SchoolName: opts.School,
	}, cred)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if useJSON(cc.Cfg, opts.JSON) {
		return renderJSON(w, res)
	}
	_, _ = fmt.Fprintf(w, "Created %q (%s)\n", res.Name, res.ResourceID)
	if res.Migration != nil && res.Migration.Updated {
		_, _ = fmt.Fprintf(w, "Migrated to schema %s\n", res.Migration.ToVersion)
	}
	return nil
}
