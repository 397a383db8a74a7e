package keys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known anvil/hardhat dev key, account 0.
const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := Encrypt("0x"+devKey, "hunter2")
	require.NoError(t, err)

	got, err := Decrypt(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, devKey, got)

	_, err = Decrypt(blob, "wrong")
	assert.Error(t, err)
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := Encrypt(devKey, "")
	assert.Error(t, err)

	_, err = Encrypt("not-hex", "pw")
	assert.Error(t, err)

	_, err = Encrypt("abcd", "pw") // too short
	assert.Error(t, err)
}

func TestLoadOperatorFromRawKey(t *testing.T) {
	op, err := LoadOperator(Config{RawPrivateKey: "0x" + devKey})
	require.NoError(t, err)
	assert.Equal(t, devAddress, op.Address().Hex())
}

func TestLoadOperatorFromEncryptedFile(t *testing.T) {
	blob, err := Encrypt(devKey, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	op, err := LoadOperator(Config{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, devAddress, op.Address().Hex())
}

func TestLoadOperatorNoSource(t *testing.T) {
	_, err := LoadOperator(Config{})
	assert.Error(t, err)
}
