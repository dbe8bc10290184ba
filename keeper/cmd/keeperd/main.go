package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	kpcmd "github.com/fortuna-labs/keeper/keeper/cmd"
	"github.com/fortuna-labs/keeper/keeper/cmd/keeperd/daemon"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/version"
)

const BinaryName = "keeperd"

// NewRootCmd creates a new root command for keeperd. It is called once in the main function.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           BinaryName,
		Short:         fmt.Sprintf("%s - Randomness Keeper Daemon.", BinaryName),
		Long:          fmt.Sprintf(`%s reveals hash chain values for randomness requests of an entropy contract.`, BinaryName),
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String(kpcmd.HomeFlag, kpcfg.DefaultKeeperdDir, "The application home directory")

	return rootCmd
}

func main() {
	cmd := NewRootCmd()

	daemon.AddDaemonCommands(cmd)
	version.AddVersionCommand(cmd, BinaryName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your keeperd CLI '%s'", err)
		os.Exit(1) //nolint:gocritic
	}
}
