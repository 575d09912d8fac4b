package exchange

import "github.com/peter-kozarec/xtrade/pkg/common"

// OwnedTrades keeps the trades that carry an ownership tag, which are the
// trades this system placed. Manual trades have no tag.
func OwnedTrades(trades []common.TradeUpdate) []common.TradeUpdate {
	var owned []common.TradeUpdate
	for _, t := range trades {
		if t.CustomComment != "" {
			owned = append(owned, t)
		}
	}
	return owned
}

// TradesOf keeps the trades tagged by strategyId.
func TradesOf(strategyId string, trades []common.TradeUpdate) []common.TradeUpdate {
	var mine []common.TradeUpdate
	for _, t := range trades {
		tag, err := common.ParseOwnerTag(t.CustomComment)
		if err == nil && tag.StrategyId == strategyId {
			mine = append(mine, t)
		}
	}
	return mine
}
