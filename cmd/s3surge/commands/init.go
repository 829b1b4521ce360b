package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/s3surge/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample s3surge configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/s3surge/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  s3surge init

  # Initialize with custom path
  s3surge init --config ./s3surge.yaml

  # Force overwrite existing config
  s3surge init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set s3.bucket and s3.region (and credentials if not using the AWS chain)")
	fmt.Println("  2. Run the workload with: s3surge run")
	fmt.Printf("  3. Or specify custom config: s3surge run --config %s\n", configPath)

	return nil
}
