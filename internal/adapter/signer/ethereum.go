// Package signer produces and checks secp256k1 signatures over quotation
// challenges.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"secure-withdrawal-gateway/internal/core/domain"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const signatureLength = 65

// EthereumSigner signs "<challenge>:<strategy>" as an EIP-191 personal
// message with one custodial key.
type EthereumSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewEthereumSigner loads a hex private key. An empty key generates an
// ephemeral one, which only suits development.
func NewEthereumSigner(hexKey string, log zerolog.Logger) (*EthereumSigner, error) {
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
		log.Warn().Msg("no signer key configured, using an ephemeral key")
	} else {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
	}
	return &EthereumSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the address derived from the signing key.
func (s *EthereumSigner) Address() common.Address {
	return s.address
}

// Sign implements ports.SignatureProvider.
func (s *EthereumSigner) Sign(ctx context.Context, challenge string, strategy domain.SigningStrategy) (domain.SignedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, ok := domain.ParseSigningStrategy(string(strategy)); !ok {
		return "", fmt.Errorf("unsupported signing strategy %q", strategy)
	}
	sig, err := crypto.Sign(digest(challenge, strategy), s.key)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	return domain.SignedArtifact(hexutil.Encode(sig)), nil
}

// Verifier checks artifacts against the address of the expected signer.
type Verifier struct {
	address common.Address
}

// NewVerifier creates a Verifier for address.
func NewVerifier(address common.Address) *Verifier {
	return &Verifier{address: address}
}

// Verify implements ports.SignatureVerifier.
func (v *Verifier) Verify(challenge string, strategy domain.SigningStrategy, artifact domain.SignedArtifact) bool {
	sig, err := hexutil.Decode(string(artifact))
	if err != nil || len(sig) != signatureLength {
		return false
	}
	pub, err := crypto.SigToPub(digest(challenge, strategy), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == v.address
}

func digest(challenge string, strategy domain.SigningStrategy) []byte {
	return accounts.TextHash([]byte(challenge + ":" + string(strategy)))
}
