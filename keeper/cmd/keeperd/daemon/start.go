package daemon

import (
	"fmt"
	"path/filepath"

	"github.com/juju/fslock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	kpcmd "github.com/fortuna-labs/keeper/keeper/cmd"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/keeper/service"
	"github.com/fortuna-labs/keeper/log"
)

const lockFileName = "keeperd.lock"

// CommandStart returns the start command of keeperd.
func CommandStart(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "start",
		Short:   "Start the keeper daemon.",
		Long:    `Start the keeper daemon. At least one commitment must have been added with add-commitment.`,
		Example: fmt.Sprintf(`%s start --home /home/user/.keeperd`, binaryName),
		Args:    cobra.NoArgs,
		RunE:    kpcmd.RunEWithHome(runStartCmd),
	}
	cmd.Flags().String(kpcmd.ChainIDFlag, "", "Override the chain name of the config")

	return cmd
}

func runStartCmd(homePath string, cmd *cobra.Command, _ []string) error {
	cfg, err := kpcmd.LoadConfig(cmd)
	if err != nil {
		return err
	}

	lock := fslock.New(filepath.Join(homePath, lockFileName))
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("failed to lock home directory %s, is another keeperd running? %w", homePath, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	logger, err := log.NewRootLoggerWithFile(kpcfg.LogFile(homePath), cfg.LogLevel, cfg.LogFormat, log.FileOptions{
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize the logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	dbBackend, err := cfg.DatabaseConfig.GetDBBackend()
	if err != nil {
		return fmt.Errorf("failed to create db backend: %w", err)
	}
	defer func() {
		if err := dbBackend.Close(); err != nil {
			logger.Error("failed to close the database", zap.Error(err))
		}
	}()

	app, err := service.NewKeeperAppFromConfig(cmd.Context(), cfg, dbBackend, logger)
	if err != nil {
		return fmt.Errorf("failed to create keeper app: %w", err)
	}

	if err := service.NewServer(app, logger).RunUntilShutdown(cmd.Context()); err != nil {
		return fmt.Errorf("failed to run keeper server: %w", err)
	}

	return nil
}
