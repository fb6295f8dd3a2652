package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/gdorker/internal/config"
)

//go:embed templates/gdorker.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new gdorker configuration file",
		Long: `Initialize creates a new .gdorker configuration file in the current directory.

The generated file includes:
- Default pacing, result cap and backend settings
- Commented examples for proxies and extra URL deny patterns
- A placeholder for Custom Search API credentials

Examples:
  # Create .gdorker in current directory
  gdorker init

  # Create config file at a specific path
  gdorker init -o ~/.config/gdorker/config.yaml

  # Force overwrite existing file
  gdorker init -f

  # Print the template instead of writing a file
  gdorker init --print`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().Bool("print", false,
		"Print the configuration template to stdout instead of writing a file")
	cmd.MarkFlagsMutuallyExclusive("print", "force")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	printOnly, err := cmd.Flags().GetBool("print")
	if err != nil {
		return err
	}

	content, err := configTemplate.ReadFile("templates/gdorker.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}
	if printOnly {
		_, err := cmd.OutOrStdout().Write(content)
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold API credentials
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Proxy pool and query pacing")
	fmt.Fprintln(out, "  - Extra URL deny patterns")
	fmt.Fprintln(out, "  - Custom Search API credentials")

	return nil
}
