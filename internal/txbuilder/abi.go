package txbuilder

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const multiTransferABIJSON = `[
	{"constant":false,"inputs":[{"name":"packed","type":"bytes32[]"}],"name":"golemTransferDirectPacked","outputs":[],"type":"function"},
	{"constant":false,"inputs":[{"name":"packed","type":"bytes32[]"},{"name":"sum","type":"uint256"}],"name":"golemTransferIndirectPacked","outputs":[],"type":"function"}
]`

const faucetABIJSON = `[
	{"constant":false,"inputs":[],"name":"create","outputs":[],"type":"function"}
]`

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("txbuilder: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	erc20ABI         = mustParseABI(erc20ABIJSON)
	multiTransferABI = mustParseABI(multiTransferABIJSON)
	faucetABI        = mustParseABI(faucetABIJSON)
)
