// Package config resolves the driver's per-network configuration from
// environment variables (spec §6), defaulting every value so the process
// never requires a config file to start.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Atlas16A/yagna-erc20-driver/internal/gasprice"
	"github.com/Atlas16A/yagna-erc20-driver/internal/model"
)

// defaultRPC mirrors the original driver's public RPC defaults
// (ethereum.rs get_rpc_addr), one per network's *_GETH_ADDR variable.
var defaultRPC = map[model.Network]string{
	model.Mainnet: "https://geth.golem.network:55555",
	model.Rinkeby: "http://geth.testnet.golem.network:55555",
	model.Goerli:  "https://rpc.goerli.mudit.blog",
	model.Polygon: "https://bor.golem.network",
	model.Mumbai:  "https://matic-mumbai.chainstacklabs.com",
}

var rpcEnvVar = map[model.Network]string{
	model.Mainnet: "MAINNET_GETH_ADDR",
	model.Rinkeby: "RINKEBY_GETH_ADDR",
	model.Goerli:  "GOERLI_GETH_ADDR",
	model.Polygon: "POLYGON_GETH_ADDR",
	model.Mumbai:  "MUMBAI_GETH_ADDR",
}

// defaultConfirmations reflects each network's practical reorg depth; it can
// be overridden per network via <NETWORK>_REQUIRED_CONFIRMATIONS.
var defaultConfirmations = map[model.Network]uint64{
	model.Mainnet: 15,
	model.Rinkeby: 3,
	model.Goerli:  3,
	model.Polygon: 128,
	model.Mumbai:  64,
}

// defaultTokenContract is only known publicly for Mainnet; other networks
// must set <NETWORK>_TOKEN_CONTRACT explicitly.
var defaultTokenContract = map[model.Network]string{
	model.Mainnet: "0x7DD9c5Cba05E151C895FDe1cF355C9A1D5DA6429",
}

// Config is the fully-resolved, process-wide configuration: one
// model.NetworkConfig per supported network plus the gas-price policy
// settings that apply uniformly across the sidechain networks.
type Config struct {
	Networks               map[model.Network]model.NetworkConfig
	GasMethod              gasprice.Method
	GasPriority            gasprice.Priority
	MaxGasPriceDynamicGwei float64
}

// Load binds the spec's environment variables (with defaults) and resolves
// a Config. flags, if non-nil, lets a CLI layer register pflag overrides
// before Load is called; Load itself never parses os.Args.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, model.WrapDriverError("bind config flags", err)
		}
	}

	v.SetDefault("polygon_priority", "slow")
	v.SetDefault("polygon_gas_price_method", "dynamic")
	v.SetDefault("polygon_max_gas_price_dynamic", 1000.0)

	networks := make(map[model.Network]model.NetworkConfig, 5)
	for _, n := range []model.Network{model.Mainnet, model.Rinkeby, model.Goerli, model.Polygon, model.Mumbai} {
		envVar := rpcEnvVar[n]
		v.SetDefault(strings.ToLower(envVar), defaultRPC[n])

		confirmationsVar := n.String() + "_required_confirmations"
		v.SetDefault(confirmationsVar, defaultConfirmations[n])

		tokenVar := n.String() + "_token_contract"
		v.SetDefault(tokenVar, defaultTokenContract[n])

		networks[n] = model.NetworkConfig{
			Network:               n,
			ChainID:               n.ChainID(),
			RPCEndpoint:           v.GetString(strings.ToLower(envVar)),
			RequiredConfirmations: v.GetUint64(confirmationsVar),
			TokenContractAddress:  v.GetString(tokenVar),
			MultiTransferContract: optionalAddress(v, n.String()+"_multi_transfer_contract"),
			FaucetContractAddress: optionalAddress(v, n.String()+"_faucet_contract"),
		}
	}

	return &Config{
		Networks:               networks,
		GasMethod:              gasprice.ParseMethod(v.GetString("polygon_gas_price_method")),
		GasPriority:            gasprice.ParsePriority(v.GetString("polygon_priority")),
		MaxGasPriceDynamicGwei: v.GetFloat64("polygon_max_gas_price_dynamic"),
	}, nil
}

func optionalAddress(v *viper.Viper, key string) *string {
	val := v.GetString(key)
	if val == "" {
		return nil
	}
	return &val
}

// PolicyFor builds the gasprice.Policy for network, applying the globally
// configured method/priority (spec §6: Polygon's env vars govern every
// sidechain network uniformly).
func (c *Config) PolicyFor(network model.Network) gasprice.Policy {
	return gasprice.Policy{
		Network:  network,
		Method:   c.GasMethod,
		Priority: c.GasPriority,
	}
}
