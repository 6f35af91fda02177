// Package signer defines the Signer boundary the lifecycle engine's EIP-155
// digest is handed to (spec §6: an external collaborator, only its interface is
// ours to specify) and a go-ethereum keystore-backed implementation of it.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// Signer signs the Keccak-256 digest of a raw transaction's EIP-155 RLP
// encoding for nodeID, returning the 65-byte (r, s, v) signature.
type Signer interface {
	Sign(ctx context.Context, nodeID common.Address, digest []byte) ([]byte, error)
}

// errAccountNotFound prefixes the message of the model.DriverError returned
// when nodeID has no matching account.
const errAccountNotFound = "no unlocked account for node id"

func accountNotFoundError(nodeID common.Address) *model.DriverError {
	return model.NewDriverError(errAccountNotFound + ": " + nodeID.Hex())
}
