package daemon

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/spf13/cobra"

	"github.com/fortuna-labs/keeper/hashchain"
	kpcmd "github.com/fortuna-labs/keeper/keeper/cmd"
	kpcfg "github.com/fortuna-labs/keeper/keeper/config"
	"github.com/fortuna-labs/keeper/keeper/service"
	"github.com/fortuna-labs/keeper/keeper/store"
	"github.com/fortuna-labs/keeper/util"
)

// CommitmentInfo is the printable form of a stored commitment.
type CommitmentInfo struct {
	ChainID             string `json:"chain_id"`
	Provider            string `json:"provider"`
	StartSequenceNumber uint64 `json:"start_sequence_number"`
	ChainLength         uint64 `json:"chain_length"`
	SampleInterval      uint64 `json:"sample_interval"`
	CommitmentRandom    string `json:"commitment_random"`
	Commitment          string `json:"commitment"`
	CreatedAt           string `json:"created_at"`
}

// RevealInfo is the printable form of a revealed chain element.
type RevealInfo struct {
	ChainID        string `json:"chain_id"`
	Provider       string `json:"provider"`
	SequenceNumber uint64 `json:"sequence_number"`
	ChainOffset    uint64 `json:"chain_offset"`
	Revelation     string `json:"revelation"`
}

func newCommitmentInfo(chainID string, provider common.Address, c *store.StoredCommitment) *CommitmentInfo {
	return &CommitmentInfo{
		ChainID:             chainID,
		Provider:            provider.Hex(),
		StartSequenceNumber: c.StartSequenceNumber,
		ChainLength:         c.ChainLength,
		SampleInterval:      c.SampleInterval,
		CommitmentRandom:    hexutil.Encode(c.CommitmentRandom[:]),
		Commitment:          c.Commitment.Hex(),
		CreatedAt:           c.CreatedTime().Format(time.RFC3339),
	}
}

// CommandAddCommitment returns the add-commitment command.
func CommandAddCommitment(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "add-commitment",
		Aliases: []string{"ac"},
		Short:   "Create a new hash chain and store its commitment.",
		Long: `Creates a new hash chain starting at the given sequence number and stores the
parameters needed to rebuild it. The printed commitment must be registered on
the entropy contract before the chain can serve requests.`,
		Example: fmt.Sprintf(`%s add-commitment --start-seq 0 --chain-length 100000 --sample-interval 100`, binaryName),
		Args:    cobra.NoArgs,
		RunE:    runAddCommitmentCmd,
	}
	f := cmd.Flags()
	f.String(kpcmd.ChainIDFlag, "", "Override the chain name of the config")
	f.Uint64(startSeqFlag, 0, "The first sequence number served by the chain")
	f.Uint64(chainLengthFlag, defaultChainLength, "The number of elements of the chain")
	f.Uint64(sampleIntervalFlag, defaultSampleInterval, "Every how many elements one is kept in memory")

	if err := cmd.MarkFlagRequired(startSeqFlag); err != nil {
		panic(err)
	}

	return cmd
}

func runAddCommitmentCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := kpcmd.LoadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	startSeq, err := flags.GetUint64(startSeqFlag)
	if err != nil {
		return fmt.Errorf("failed to read flag %s: %w", startSeqFlag, err)
	}
	length, err := flags.GetUint64(chainLengthFlag)
	if err != nil {
		return fmt.Errorf("failed to read flag %s: %w", chainLengthFlag, err)
	}
	interval, err := flags.GetUint64(sampleIntervalFlag)
	if err != nil {
		return fmt.Errorf("failed to read flag %s: %w", sampleIntervalFlag, err)
	}

	secret, err := util.ReadHexFile(cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to load the provider secret: %w", err)
	}

	var commitmentRandom [32]byte
	if _, err := rand.Read(commitmentRandom[:]); err != nil {
		return fmt.Errorf("failed to generate commitment randomness: %w", err)
	}

	provider := cfg.Provider()
	seed := hashchain.DeriveSeed(secret, cfg.ChainID, provider, cfg.ChainConfig.Contract(), commitmentRandom)
	chain, err := hashchain.New(seed, length, interval)
	if err != nil {
		return fmt.Errorf("failed to create hash chain: %w", err)
	}

	db, cs, err := openCommitmentStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c := &store.StoredCommitment{
		StartSequenceNumber: startSeq,
		ChainLength:         length,
		SampleInterval:      interval,
		CommitmentRandom:    commitmentRandom,
		Commitment:          chain.Commitment(),
	}
	if err := cs.AddCommitment(cfg.ChainID, provider, c); err != nil {
		return fmt.Errorf("failed to store commitment: %w", err)
	}

	return printRespJSON(cmd, newCommitmentInfo(cfg.ChainID, provider, c))
}

// CommandListCommitments returns the list-commitments command.
func CommandListCommitments(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "list-commitments",
		Aliases: []string{"ls"},
		Short:   "List the stored commitments of the configured provider.",
		Example: fmt.Sprintf(`%s list-commitments --home /home/user/.keeperd`, binaryName),
		Args:    cobra.NoArgs,
		RunE:    runListCommitmentsCmd,
	}
	cmd.Flags().String(kpcmd.ChainIDFlag, "", "Override the chain name of the config")

	return cmd
}

func runListCommitmentsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := kpcmd.LoadConfig(cmd)
	if err != nil {
		return err
	}

	db, cs, err := openCommitmentStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	provider := cfg.Provider()
	stored, err := cs.GetCommitments(cfg.ChainID, provider)
	if err != nil {
		return fmt.Errorf("failed to load commitments: %w", err)
	}

	infos := make([]*CommitmentInfo, 0, len(stored))
	for _, c := range stored {
		infos = append(infos, newCommitmentInfo(cfg.ChainID, provider, c))
	}

	return printRespJSON(cmd, infos)
}

// CommandReveal returns the reveal command which computes a chain element
// offline from the stored commitments.
func CommandReveal(binaryName string) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "reveal [sequence-number]",
		Short:   "Compute the revelation of a sequence number without contacting the chain.",
		Example: fmt.Sprintf(`%s reveal 42 --home /home/user/.keeperd`, binaryName),
		Args:    cobra.ExactArgs(1),
		RunE:    runRevealCmd,
	}
	cmd.Flags().String(kpcmd.ChainIDFlag, "", "Override the chain name of the config")

	return cmd
}

func runRevealCmd(cmd *cobra.Command, args []string) error {
	seq, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sequence number %q: %w", args[0], err)
	}

	cfg, err := kpcmd.LoadConfig(cmd)
	if err != nil {
		return err
	}

	secret, err := util.ReadHexFile(cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to load the provider secret: %w", err)
	}

	db, cs, err := openCommitmentStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	provider := cfg.Provider()
	registry, err := service.LoadRegistry(cs, secret, cfg.ChainID, provider, cfg.ChainConfig.Contract())
	if err != nil {
		return err
	}

	offset, _, err := registry.ChainFor(seq)
	if err != nil {
		return err
	}
	revelation, err := registry.Reveal(seq)
	if err != nil {
		return err
	}

	return printRespJSON(cmd, &RevealInfo{
		ChainID:        cfg.ChainID,
		Provider:       provider.Hex(),
		SequenceNumber: seq,
		ChainOffset:    offset,
		Revelation:     revelation.Hex(),
	})
}

func openCommitmentStore(cfg *kpcfg.Config) (kvdb.Backend, *store.CommitmentStore, error) {
	db, err := cfg.DatabaseConfig.GetDBBackend()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create db backend: %w", err)
	}

	cs, err := store.NewCommitmentStore(db)
	if err != nil {
		_ = db.Close()

		return nil, nil, fmt.Errorf("failed to initiate commitment store: %w", err)
	}

	return db, cs, nil
}
