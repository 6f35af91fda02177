// Package nonce implements the Nonce Manager (spec §4.1): it resolves the
// nonce to assign to the next transaction a sender broadcasts on a network,
// trusting the local store over the remote node so that nonces the driver
// has already claimed but not yet broadcast are never reused.
package nonce

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// ChainClient is the subset of chain.Client the nonce manager needs.
type ChainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Store is the subset of the persistence adapter the nonce manager needs:
// the highest nonce already claimed by an unfinished local record.
type Store interface {
	GetLastDBNoncePending(ctx context.Context, sender string, network model.Network) (*uint64, error)
}

// Manager resolves nonces for (sender, network) pairs.
type Manager struct {
	Client ChainClient
	Store  Store
}

// Info runs the lookup described in spec §4.1 steps 1-2 and returns the raw
// NextNonceInfo without deciding which value wins.
func (m *Manager) Info(ctx context.Context, sender common.Address, network model.Network) (model.NextNonceInfo, error) {
	pending, err := m.Client.PendingNonceAt(ctx, sender)
	if err != nil {
		return model.NextNonceInfo{}, model.WrapDriverError("pending nonce", err)
	}
	latest, err := m.Client.NonceAt(ctx, sender, nil)
	if err != nil {
		return model.NextNonceInfo{}, model.WrapDriverError("latest nonce", err)
	}

	lastDB, err := m.Store.GetLastDBNoncePending(ctx, sender.Hex(), network)
	if err != nil {
		return model.NextNonceInfo{}, model.WrapDriverError("db nonce lookup", err)
	}

	var dbPending *uint64
	if lastDB != nil {
		next := *lastDB + 1
		dbPending = &next
	}

	return model.NextNonceInfo{
		NetworkNoncePending: pending,
		NetworkNonceLatest:  latest,
		DBNoncePending:      dbPending,
	}, nil
}

// Next resolves the nonce to assign to the next transaction for sender on
// network (spec §4.1 steps 3-4): the local claim wins when present; a
// network pending count ahead of it is logged but not trusted, since it
// means another writer used this account and the next send will surface
// that as a "nonce too low" error to be handled by the lifecycle engine.
func (m *Manager) Next(ctx context.Context, sender common.Address, network model.Network) (uint64, error) {
	info, err := m.Info(ctx, sender, network)
	if err != nil {
		return 0, err
	}

	if info.DBNoncePending != nil {
		if info.NetworkNoncePending > *info.DBNoncePending {
			log.Warn("network nonce ahead of local claim",
				"sender", sender.Hex(),
				"network", network.String(),
				"network_pending", info.NetworkNoncePending,
				"db_pending", *info.DBNoncePending,
			)
		}
		return *info.DBNoncePending, nil
	}
	return info.NetworkNoncePending, nil
}
