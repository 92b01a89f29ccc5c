package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to .gate.yaml in the current directory,
or to ~/.config/gate/config.yaml with --user.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce bool
	initUser  bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&initUser, "user", false, "write the user config instead of the project config")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := config.ProjectConfigFile
	if initUser {
		p, err := config.UserConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := config.WriteDefaultConfig(path, initForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
