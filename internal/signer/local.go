package signer

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// LocalSigner signs directly with in-memory private keys. It is used by
// the tests and by cmd/erc20-driver's --private-key flag; KeystoreSigner is
// the keystore-backed alternative, which cmd/erc20-driver does not wire.
type LocalSigner struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

// NewLocalSigner builds a LocalSigner from a set of raw private keys,
// indexing each by its derived address.
func NewLocalSigner(keys ...*ecdsa.PrivateKey) *LocalSigner {
	indexed := make(map[common.Address]*ecdsa.PrivateKey, len(keys))
	for _, k := range keys {
		indexed[crypto.PubkeyToAddress(k.PublicKey)] = k
	}
	return &LocalSigner{keys: indexed}
}

func (s *LocalSigner) Sign(ctx context.Context, nodeID common.Address, digest []byte) ([]byte, error) {
	key, ok := s.keys[nodeID]
	if !ok {
		return nil, accountNotFoundError(nodeID)
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, model.WrapDriverError("local sign", err)
	}
	return sig, nil
}

var _ Signer = (*LocalSigner)(nil)
