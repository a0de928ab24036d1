package signer

import (
	"context"
	"strings"
	"testing"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestEthereumSigner_RoundTrip(t *testing.T) {
	s, err := NewEthereumSigner(testKey, zerolog.Nop())
	require.NoError(t, err)
	v := NewVerifier(s.Address())

	artifact, err := s.Sign(context.Background(), "q-1:abcd", domain.StrategyPasskey)
	require.NoError(t, err)

	assert.Len(t, string(artifact), 2+2*signatureLength)
	assert.True(t, v.Verify("q-1:abcd", domain.StrategyPasskey, artifact))
	assert.False(t, v.Verify("q-2:abcd", domain.StrategyPasskey, artifact), "other challenge")
	assert.False(t, v.Verify("q-1:abcd", domain.StrategyOTP, artifact), "other strategy")
}

func TestEthereumSigner_ConfiguredKeyAddress(t *testing.T) {
	s, err := NewEthereumSigner(testKey, zerolog.Nop())
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), s.Address())
}

func TestEthereumSigner_EphemeralKeysDiffer(t *testing.T) {
	a, err := NewEthereumSigner("", zerolog.Nop())
	require.NoError(t, err)
	b, err := NewEthereumSigner("", zerolog.Nop())
	require.NoError(t, err)

	artifact, err := a.Sign(context.Background(), "challenge", domain.StrategyBiometric)
	require.NoError(t, err)

	assert.NotEqual(t, a.Address(), b.Address())
	assert.False(t, NewVerifier(b.Address()).Verify("challenge", domain.StrategyBiometric, artifact))
}

func TestEthereumSigner_Errors(t *testing.T) {
	_, err := NewEthereumSigner("zz", zerolog.Nop())
	assert.Error(t, err)

	s, err := NewEthereumSigner(testKey, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Sign(context.Background(), "challenge", domain.SigningStrategy("PIGEON"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sign(ctx, "challenge", domain.StrategyPasskey)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifier_RejectsMalformedArtifacts(t *testing.T) {
	s, err := NewEthereumSigner(testKey, zerolog.Nop())
	require.NoError(t, err)
	v := NewVerifier(s.Address())

	for _, artifact := range []domain.SignedArtifact{"", "0x", "nothex", "0x1234", domain.SignedArtifact("0x" + strings.Repeat("00", signatureLength))} {
		assert.False(t, v.Verify("challenge", domain.StrategyPasskey, artifact), string(artifact))
	}
}
