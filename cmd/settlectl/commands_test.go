package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	tokens := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(tokens, []byte("tokens:\n  - symbol: USDC\n    precision: 6\n"), 0o644))
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TRANSFER_BACKEND", "memory")
	t.Setenv("TOKENS_FILE", tokens)
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitCmd(t *testing.T) {
	memoryEnv(t)

	out, err := run(t, initCmd(), "--admin", "admin", "--fee-bps", "300", "--collector", "treasury")
	require.NoError(t, err)
	assert.Contains(t, out, "fee_bps=300")
	assert.Contains(t, out, "collector=treasury")
}

func TestInitCmdRejectsBadFee(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, initCmd(), "--admin", "admin", "--fee-bps", "10001", "--collector", "treasury")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestStateCmdBeforeInit(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, stateCmd())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestEscrowCmdRejectsMalformedID(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, escrowCmd(), "not-hex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")
}

func TestPauseCmdRequiresCaller(t *testing.T) {
	memoryEnv(t)

	_, err := run(t, pauseCmd(true))
	require.Error(t, err)
}
