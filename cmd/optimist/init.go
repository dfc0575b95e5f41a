package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/optimist-go/optimist/internal/config"
	"github.com/optimist-go/optimist/internal/errors"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an optimist.json in the current directory",
		Long: `Create an optimist.json with default settings in the current directory.

The file configures 'optimist serve': listen address, sync limits, cache
expiry, persistence backend and logging. Every field is optional; absent
fields keep their defaults.

Examples:
  optimist init
  optimist init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing optimist.json")

	return cmd
}

func runInit(force bool) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	if config.Exists(dir) && !force {
		return errors.New("E062").
			WithDetail("'" + filepath.Join(dir, config.ConfigFileName) + "' already exists").
			WithSuggestion("Pass --force to overwrite it")
	}

	cfg := config.Default()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		return err
	}

	success("Created %s", config.ConfigFileName)
	info("Edit it to pick a persistence backend, then run 'optimist serve'")

	return nil
}
