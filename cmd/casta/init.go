package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/casta-dev/casta/internal/config"
	"github.com/casta-dev/casta/internal/errors"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default casta.json",
		Long: `Write casta.json with every setting at its default value.

Examples:
  casta init
  casta init deploy/ --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing casta.json")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if config.Exists(dir) && !force {
		return errors.New("E141").WithDetail(filepath.Join(dir, config.ConfigFileName))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Newf(errors.CategoryCLI, "cannot create %s", dir).Wrap(err)
	}

	path := filepath.Join(dir, config.ConfigFileName)
	if err := config.New().SaveTo(path); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Wrote %s", path)
	return nil
}
