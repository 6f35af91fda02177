package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
)

// DialEthClient is the production Dialer: it opens a real JSON-RPC
// connection via go-ethereum's ethclient.
func DialEthClient(ctx context.Context, rpcURL string) (Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}
