package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a starter configuration and schema",
		Long: `Create a bustracker.yaml configuration and a starter schema.json.

Secrets in the generated configuration refer to environment variables
(${GOOGLE_CLIENT_SECRET} and friends) so the file can be committed.`,
		Example: `  # Initialize in current directory
  bustracker init

  # Initialize in a new directory
  bustracker init district-42

  # Force overwrite existing files
  bustracker init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "bustracker.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("bustracker.yaml already exists. Use --force to overwrite")
	}

	files, err := copyTemplate("project", dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	w := cmd.OutOrStdout()
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "  created %s\n", f)
	}
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Next steps:")
	_, _ = fmt.Fprintln(w, "  1. Set google.master_template_id in bustracker.yaml")
	_, _ = fmt.Fprintln(w, "  2. Run 'bustracker schema extract' to sync schema.json with the template")
	_, _ = fmt.Fprintln(w, "  3. Run 'bustracker doctor' to check the setup")
	_, _ = fmt.Fprintln(w, "  4. Run 'bustracker serve'")
	return nil
}
