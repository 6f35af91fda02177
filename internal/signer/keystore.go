package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// KeystoreSigner signs with accounts already unlocked in a go-ethereum
// keystore (the same encrypted-keyfile format the keys-addresses exercise
// produces). It never holds decrypted key material itself — unlocking and
// locking accounts is the caller's responsibility.
type KeystoreSigner struct {
	KS *keystore.KeyStore
}

// Sign looks up the account matching nodeID and signs digest with it. The
// account must already be unlocked; SignHash does not consult a passphrase.
func (s *KeystoreSigner) Sign(ctx context.Context, nodeID common.Address, digest []byte) ([]byte, error) {
	account := accounts.Account{Address: nodeID}
	sig, err := s.KS.SignHash(account, digest)
	if err != nil {
		return nil, model.WrapDriverError("keystore sign", err)
	}
	return sig, nil
}

var _ Signer = (*KeystoreSigner)(nil)
