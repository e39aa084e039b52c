// Package symbols maps ad-hoc tickers and aliases to catalog identifiers.
package symbols

import "fmt"

type alias struct {
	from string
	to   string
}

// aliasPairs is the static alias table. Keys are matched case-sensitively.
var aliasPairs = []alias{
	{"gem", "gemswap"},
	{"safe", "yieldfarming-insure"},
	{"yamv2", "yam-v2"},
	{"uni", "uniswap"},
	{"ethemaapy", "eth-26-ma-crossover-yield-ii"},
	{"vcrvplain3andsusd", "susd"},
	{"mir", "mirror-protocol"},
	{"bdp", "big-data-protocol"},
	{"eth", "ethereum"},
	{"weth", "ethereum"},
	{"GRT", "the-graph"},
	{"grt", "the-graph"},
	{"snx", "havven"},
	{"knc", "kyber-network"},
	{"cvx", "convex-finance"},
	{"rune", "thorchain-erc20"},
	{"toke", "tokemak"},
	{"rdpx", "dopex-rebate-token"},
	{"sdt", "stake-dao"},
	{"SDT", "stake-dao"},
	{"gmx", "GMX"},
	{"imx", "immutable-x"},
	{"silo", "silo-finance"},
	{"alpha", "alpha-finance"},
	{"lyra", "lyra-finance"},
	{"jpeg", "jpeg-d"},
	{"ast", "airswap"},
	{"pls", "plutusdao"},
	{"usdc", "usd-coin"},
	{"cnc", "conic-finance"},
	{"gear", "gearbox"},
	{"xgrail", "grail"},
	{"crv", "curve-dao-token"},
	{"wbtc", "wrapped-bitcoin"},
	{"alp", "arbitrove-alp"},
}

var aliases = mustBuildTable(aliasPairs)

func buildTable(pairs []alias) (map[string]string, error) {
	table := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if prev, dup := table[p.from]; dup {
			return nil, fmt.Errorf("duplicate alias %q (%q vs %q)", p.from, prev, p.to)
		}
		table[p.from] = p.to
	}
	return table, nil
}

func mustBuildTable(pairs []alias) map[string]string {
	table, err := buildTable(pairs)
	if err != nil {
		panic(err)
	}
	return table
}

// Normalize returns the canonical key for raw, or raw itself when no alias exists.
func Normalize(raw string) string {
	if to, ok := aliases[raw]; ok {
		return to
	}
	return raw
}

// Aliases returns a copy of the alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}
