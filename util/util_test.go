package util_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/fortuna-labs/keeper/util"
)

func TestMulPct(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(0), util.MulPct(0, 500))
	require.Equal(t, uint64(125), util.MulPct(100, 125))
	require.Equal(t, uint64(110_000), util.MulPct(100_000, 110))
	require.Equal(t, uint64(1), util.MulPct(1, 199))
	require.Equal(t, uint64(math.MaxUint64), util.MulPct(math.MaxUint64, math.MaxUint64))
	require.Equal(t, uint64(math.MaxUint64/100/100*200), util.MulPct(math.MaxUint64/100, 200))
}

func TestHexFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	keyFile := filepath.Join(dir, "signer.key")
	require.NoError(t, util.WriteHexFile(keyFile, crypto.FromECDSA(key)))

	loaded, err := util.LoadPrivateKey(keyFile)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(loaded.PublicKey))

	// bare hex with trailing whitespace is accepted
	bare := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(bare, []byte("deadbeef\n"), 0600))
	b, err := util.ReadHexFile(bare)
	require.NoError(t, err)
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, b)

	zero := filepath.Join(dir, "zero.key")
	require.NoError(t, util.WriteHexFile(zero, make([]byte, 32)))
	_, err = util.LoadPrivateKey(zero)
	require.Error(t, err)

	_, err = util.ReadHexFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestPaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	nested := filepath.Join(dir, "a", "b")
	require.False(t, util.FileExists(nested))
	require.NoError(t, util.MakeDirectory(nested))
	require.True(t, util.FileExists(nested))

	require.Equal(t, "", util.CleanAndExpandPath(""))
	require.Equal(t, filepath.Join(dir, "a"), util.CleanAndExpandPath(dir+"/a/b/.."))
}
