package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/util"
)

const (
	HomeFlag    = "home"
	ChainIDFlag = "chain-id"
)

// HomeDir resolves the home flag to an absolute path with ~ and env
// variables expanded.
func HomeDir(cmd *cobra.Command) (string, error) {
	home, err := cmd.Flags().GetString(HomeFlag)
	if err != nil {
		return "", fmt.Errorf("failed to read flag %s: %w", HomeFlag, err)
	}

	homePath, err := filepath.Abs(util.CleanAndExpandPath(home))
	if err != nil {
		return "", fmt.Errorf("failed to get home path: %w", err)
	}

	return homePath, nil
}

// LoadConfig loads keeperd.conf from the home directory. Flags have
// preference over the values in the config.
func LoadConfig(cmd *cobra.Command) (*kpcfg.Config, error) {
	homePath, err := HomeDir(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := kpcfg.LoadConfig(homePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if f := cmd.Flags().Lookup(ChainIDFlag); f != nil && f.Changed {
		if f.Value.String() == "" {
			return nil, fmt.Errorf("%s cannot be empty", ChainIDFlag)
		}
		cfg.ChainID = f.Value.String()
	}

	return cfg, nil
}

// RunEWithHome runs cmd with the resolved home directory.
func RunEWithHome(
	fRunWithHome func(homePath string, cmd *cobra.Command, args []string) error,
) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		homePath, err := HomeDir(cmd)
		if err != nil {
			return err
		}

		return fRunWithHome(homePath, cmd, args)
	}
}
