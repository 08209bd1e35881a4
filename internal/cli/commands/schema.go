package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/bustracker/internal/schema"
)

// NewSchemaCommand creates the schema command and its subcommands.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect or extract the canonical sheet schema",
	}
	cmd.AddCommand(newSchemaShowCommand())
	cmd.AddCommand(newSchemaExtractCommand())
	return cmd
}

func newSchemaShowCommand() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the schema file's version and columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			def, err := schema.NewFileSource(cfg.SchemaPath).Load(cmd.Context())
			if err != nil {
				return err
			}
			return renderSchema(cmd, def, useJSON(cfg, jsonOut))
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderSchema(cmd *cobra.Command, def *schema.Definition, jsonOut bool) error {
	w := cmd.OutOrStdout()
	if jsonOut {
		data, err := def.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	_, _ = fmt.Fprintf(w, "Schema version %s\n", def.Version)
	t := newTable(w, "#", "Column", "Type", "Description")
	for i, c := range def.Columns {
		t.AppendRow(table.Row{i + 1, c.Name, c.Type, c.Description})
	}
	t.Render()
	return nil
}

// ExtractOptions holds options for the schema extract command.
type ExtractOptions struct {
	Output     string
	TemplateID string
}

func newSchemaExtractCommand() *cobra.Command {
	opts := &ExtractOptions{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Build the schema file from the master template",
		Long: `Read the master template's header row and version cell and write them
as the schema file. A template without a version cell gets version 1.0.`,
		Example: `  # Overwrite the configured schema file
  bustracker schema extract

  # Print to stdout
  bustracker schema extract --output -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, cleanup, err := NewCommandContext(cmd, SchemaOptional())
			if err != nil {
				return err
			}
			defer cleanup()
			return runSchemaExtract(cmd, cc, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file, or - for stdout (default: schema_path)")
	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "Template to read (default: google.master_template_id)")
	return cmd
}

func runSchemaExtract(cmd *cobra.Command, cc *CommandContext, opts *ExtractOptions) error {
	templateID := opts.TemplateID
	if templateID == "" {
		templateID = cc.TemplateID
	}
	if templateID == "" {
		return fmt.Errorf("no master template configured (set google.master_template_id or pass --template)")
	}

	ctx, cancel := cc.RemoteContext(cmd.Context())
	defer cancel()

	cred, err := cc.Credential(ctx)
	if err != nil {
		return err
	}

	layout := cc.Engine.Layout()
	def, err := schema.Extract(ctx, cc.Sheets, cred, templateID, layout.HeaderRange, layout.VersionRange, cc.Logger)
	if err != nil {
		return err
	}

	switch out := opts.Output; out {
	case "-":
		return renderSchema(cmd, def, true)
	case "":
		opts.Output = cc.Cfg.SchemaPath
	}
	if err := schema.WriteFile(opts.Output, def); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote schema %s (%d columns) to %s\n", def.Version, len(def.Columns), opts.Output)
	return nil
}
