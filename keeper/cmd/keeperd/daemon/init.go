package daemon

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	kpcmd "github.com/fortuna-labs/keeper/keeper/cmd"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/util"
)

const secretSize = 32

// CommandInit returns the init command of keeperd that creates the home
// directory with a default config and a fresh provider secret.
func CommandInit(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a keeperd home directory.",
		Long: `Creates a new keeperd home directory with default config and a provider secret.
An existing secret is never overwritten, even with --force.`,
		Example: fmt.Sprintf(`%s init --home /home/user/.keeperd --chain-id ethereum --provider-address 0x...`, binaryName),
		Args:    cobra.NoArgs,
		RunE:    kpcmd.RunEWithHome(runInitCmd),
	}
	cmd.Flags().Bool(forceFlag, false, "Override existing configuration")
	cmd.Flags().String(kpcmd.ChainIDFlag, "", "The name of the chain the keeper serves")
	cmd.Flags().String(providerFlag, "", "The hex address of the randomness provider")
	cmd.Flags().String(contractFlag, "", "The hex address of the entropy contract")
	cmd.Flags().String(rpcAddressFlag, "", "The JSON-RPC endpoint of the EVM chain")

	return cmd
}

func runInitCmd(homePath string, cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	force, err := flags.GetBool(forceFlag)
	if err != nil {
		return fmt.Errorf("failed to read flag %s: %w", forceFlag, err)
	}

	if util.FileExists(homePath) && !force {
		return fmt.Errorf("home path %s already exists", homePath)
	}

	cfg := kpcfg.DefaultConfigWithHome(homePath)

	if flags.Changed(kpcmd.ChainIDFlag) {
		if cfg.ChainID, err = flags.GetString(kpcmd.ChainIDFlag); err != nil {
			return fmt.Errorf("failed to read flag %s: %w", kpcmd.ChainIDFlag, err)
		}
	}
	if flags.Changed(providerFlag) {
		if cfg.ProviderAddress, err = flags.GetString(providerFlag); err != nil {
			return fmt.Errorf("failed to read flag %s: %w", providerFlag, err)
		}
	}
	if flags.Changed(contractFlag) {
		if cfg.ChainConfig.ContractAddress, err = flags.GetString(contractFlag); err != nil {
			return fmt.Errorf("failed to read flag %s: %w", contractFlag, err)
		}
	}
	if flags.Changed(rpcAddressFlag) {
		if cfg.ChainConfig.RPCAddress, err = flags.GetString(rpcAddressFlag); err != nil {
			return fmt.Errorf("failed to read flag %s: %w", rpcAddressFlag, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	// store checksummed addresses
	cfg.ProviderAddress = cfg.Provider().Hex()
	cfg.ChainConfig.ContractAddress = cfg.ChainConfig.Contract().Hex()

	if err := util.MakeDirectory(homePath); err != nil {
		return err
	}
	if err := util.MakeDirectory(kpcfg.LogDir(homePath)); err != nil {
		return err
	}
	if err := util.MakeDirectory(kpcfg.DataDir(homePath)); err != nil {
		return err
	}

	if !util.FileExists(cfg.SecretFile) {
		secret := make([]byte, secretSize)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate the provider secret: %w", err)
		}
		if err := util.WriteHexFile(cfg.SecretFile, secret); err != nil {
			return fmt.Errorf("failed to write the provider secret: %w", err)
		}
	}

	if err := kpcfg.WriteConfig(&cfg, homePath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "initialized keeperd home at %s for provider %s\n",
		homePath, cfg.ProviderAddress)

	return err
}
