// Command erc20-driver is the thin process wiring the lifecycle engine,
// wallet facade, and chain pool into a runnable driver loop. It holds no
// interesting logic of its own: every decision lives in internal/.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/Atlas16A/yagna-erc20-driver/internal/chain"
	"github.com/Atlas16A/yagna-erc20-driver/internal/config"
	"github.com/Atlas16A/yagna-erc20-driver/internal/dao"
	"github.com/Atlas16A/yagna-erc20-driver/internal/lifecycle"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
	"github.com/Atlas16A/yagna-erc20-driver/internal/nonce"
	"github.com/Atlas16A/yagna-erc20-driver/internal/signer"
	"github.com/Atlas16A/yagna-erc20-driver/internal/txbuilder"
	"github.com/Atlas16A/yagna-erc20-driver/internal/wallet"
)

var (
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "target network (mainnet, rinkeby, goerli, polygon, mumbai)",
		Value: "mainnet",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "path to the sqlite persistence file",
		Value: "erc20-driver.db",
	}
	keyFlag = &cli.StringFlag{
		Name:  "private-key",
		Usage: "hex-encoded ECDSA private key to sign with (development use only; production wiring should use a keystore)",
	}
	intervalFlag = &cli.DurationFlag{
		Name:  "interval",
		Usage: "how often to run a send pass followed by a reconciliation pass",
		Value: 15 * time.Second,
	}
)

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))

	app := &cli.App{
		Name:  "erc20-driver",
		Usage: "ERC20 payment driver: nonce management, gas pricing, and lifecycle tracking for outbound transfers",
		Commands: []*cli.Command{
			serveCommand,
			balanceCommand,
			fundCommand,
			verifyCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// driverComponents bundles everything a subcommand needs for one network.
type driverComponents struct {
	engine *lifecycle.Engine
	facade *wallet.Facade
	store  *dao.Store
}

func wireNetwork(ctx context.Context, c *cli.Context) (*driverComponents, func(), error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}

	network, err := model.ParseNetwork(c.String(networkFlag.Name))
	if err != nil {
		return nil, nil, err
	}
	netConfig, ok := cfg.Networks[network]
	if !ok {
		return nil, nil, fmt.Errorf("no configuration resolved for network %s", network)
	}

	pool := chain.NewPool(chain.DialEthClient)
	client, err := pool.Get(ctx, netConfig.RPCEndpoint)
	if err != nil {
		return nil, nil, model.WrapDriverError("dial chain client", err)
	}

	store, err := dao.Open(c.String(dbFlag.Name))
	if err != nil {
		return nil, nil, err
	}

	var sign signer.Signer
	if keyHex := c.String(keyFlag.Name); keyHex != "" {
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			store.Close()
			return nil, nil, model.WrapDriverError("parse private key", err)
		}
		sign = signer.NewLocalSigner(key)
	}

	policy := cfg.PolicyFor(network)
	nonceMgr := &nonce.Manager{Client: client, Store: store}
	builder := &txbuilder.Builder{Chain: client, Network: netConfig, Policy: policy}
	facade := wallet.New(client, nonceMgr, builder, store, netConfig)
	engine := &lifecycle.Engine{Store: store, Signer: sign, Chain: client, Policy: policy, Network: netConfig}

	cleanup := func() { store.Close() }
	return &driverComponents{engine: engine, facade: facade, store: store}, cleanup, nil
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the lifecycle engine's send and reconciliation passes on a fixed interval until interrupted",
	Flags: []cli.Flag{networkFlag, dbFlag, keyFlag, intervalFlag},
	Action: func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		components, cleanup, err := wireNetwork(ctx, c)
		if err != nil {
			return err
		}
		defer cleanup()

		ticker := time.NewTicker(c.Duration(intervalFlag.Name))
		defer ticker.Stop()

		log.Info("driver loop started", "interval", c.Duration(intervalFlag.Name))
		for {
			select {
			case <-ctx.Done():
				log.Info("driver loop stopping")
				return nil
			case <-ticker.C:
				if err := components.engine.SendPass(ctx); err != nil {
					log.Error("send pass failed", "err", err)
				}
				if err := components.engine.Reconcile(ctx); err != nil {
					log.Error("reconcile pass failed", "err", err)
				}
			}
		}
	},
}

var balanceCommand = &cli.Command{
	Name:      "balance",
	Usage:     "print an address's native and token balances on a network",
	ArgsUsage: "<address>",
	Flags:     []cli.Flag{networkFlag, dbFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one address argument")
		}
		owner := common.HexToAddress(c.Args().First())

		components, cleanup, err := wireNetwork(c.Context, c)
		if err != nil {
			return err
		}
		defer cleanup()

		native, err := components.facade.NativeBalance(c.Context, owner)
		if err != nil {
			return err
		}
		token, err := components.facade.TokenBalance(c.Context, owner)
		if err != nil {
			return err
		}
		fmt.Printf("native: %s\ntoken: %s\n", native, token)
		return nil
	},
}

var fundCommand = &cli.Command{
	Name:      "fund",
	Usage:     "request a testnet faucet drip for an address",
	ArgsUsage: "<address>",
	Flags:     []cli.Flag{networkFlag, dbFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one address argument")
		}
		owner := common.HexToAddress(c.Args().First())

		components, cleanup, err := wireNetwork(c.Context, c)
		if err != nil {
			return err
		}
		defer cleanup()

		rec, err := components.facade.Fund(c.Context, owner)
		if err != nil {
			return err
		}
		fmt.Printf("faucet request queued: tx_id=%s\n", rec.TxID)
		return nil
	},
}

var verifyCommand = &cli.Command{
	Name:      "verify",
	Usage:     "decode a landed transaction hash's Transfer event into payment details",
	ArgsUsage: "<tx-hash>",
	Flags:     []cli.Flag{networkFlag, dbFlag},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("expected exactly one transaction hash argument")
		}
		hash := common.HexToHash(c.Args().First())

		components, cleanup, err := wireNetwork(c.Context, c)
		if err != nil {
			return err
		}
		defer cleanup()

		details, err := components.engine.VerifyTransfer(c.Context, hash)
		if err != nil {
			return err
		}
		fmt.Printf("sender=%s recipient=%s amount=%s date=%s\n",
			details.Sender.Hex(), details.Recipient.Hex(), details.Amount, details.Date)
		return nil
	},
}
