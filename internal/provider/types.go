package provider

// SwapLeg describes one side of a swap as reported by the provider
type SwapLeg struct {
	Address   string  `json:"address"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Logo      string  `json:"logo"`
	Amount    string  `json:"amount"`
	UsdAmount float64 `json:"usdAmount"`
}

// RawSwap is a single swap row from the provider's swaps-by-wallet endpoint
type RawSwap struct {
	TransactionHash  string  `json:"transactionHash"`
	TransactionIndex int     `json:"transactionIndex"`
	TransactionType  string  `json:"transactionType"` // buy, sell
	BlockTimestamp   string  `json:"blockTimestamp"`  // ISO-8601
	Sold             SwapLeg `json:"sold"`
	Bought           SwapLeg `json:"bought"`
}

// swapsResponse is the provider's wire envelope for swap listings
type swapsResponse struct {
	Result []RawSwap `json:"result"`
}

// TokenBalance is a single row from the provider's wallet token listing
type TokenBalance struct {
	TokenAddress   string  `json:"token_address"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Logo           string  `json:"logo"`
	Decimals       int     `json:"decimals"`
	Balance        string  `json:"balance"`
	UsdPrice       float64 `json:"usd_price"`
	UsdValue       float64 `json:"usd_value"`
	PossibleSpam   bool    `json:"possible_spam"`
	NativeToken    bool    `json:"native_token"`
	PortfolioPct   float64 `json:"portfolio_percentage"`
	BalanceFormted string  `json:"balance_formatted"`
}

// tokensResponse is the provider's wire envelope for token listings
type tokensResponse struct {
	Result []TokenBalance `json:"result"`
}

// TokenPnl is a per-token profitability row from the provider
type TokenPnl struct {
	TokenAddress           string  `json:"token_address"`
	Symbol                 string  `json:"symbol"`
	Name                   string  `json:"name"`
	Logo                   string  `json:"logo"`
	CountOfTrades          int     `json:"count_of_trades"`
	RealizedProfitUsd      float64 `json:"realized_profit_usd"`
	RealizedProfitPct      float64 `json:"realized_profit_percentage"`
	TotalBuys              int     `json:"total_buys"`
	TotalSells             int     `json:"total_sells"`
	TotalTokensBought      string  `json:"total_tokens_bought"`
	TotalTokensSold        string  `json:"total_tokens_sold"`
	TotalUsdInvested       string  `json:"total_usd_invested"`
	TotalSoldUsd           string  `json:"total_sold_usd"`
	AvgBuyPriceUsd         string  `json:"avg_buy_price_usd"`
	AvgSellPriceUsd        string  `json:"avg_sell_price_usd"`
	PossibleSpam           bool    `json:"possible_spam"`
	AvgCostOfQuantitySold  string  `json:"avg_cost_of_quantity_sold"`
}

// pnlResponse is the provider's wire envelope for profitability listings
type pnlResponse struct {
	Result []TokenPnl `json:"result"`
}

// PnlSummary is the provider's wallet-level profitability summary
type PnlSummary struct {
	TotalCountOfTrades     int     `json:"total_count_of_trades"`
	TotalTradeVolume       string  `json:"total_trade_volume"`
	TotalRealizedProfitUsd string  `json:"total_realized_profit_usd"`
	TotalRealizedProfitPct float64 `json:"total_realized_profit_percentage"`
	TotalBuys              int     `json:"total_buys"`
	TotalSells             int     `json:"total_sells"`
}

// TokenMetadata is the provider's token price and metadata response
type TokenMetadata struct {
	TokenAddress     string  `json:"tokenAddress"`
	TokenName        string  `json:"tokenName"`
	TokenSymbol      string  `json:"tokenSymbol"`
	TokenLogo        string  `json:"tokenLogo"`
	TokenDecimals    string  `json:"tokenDecimals"`
	UsdPrice         float64 `json:"usdPrice"`
	PercentChange24h string  `json:"24hrPercentChange"`
	MarketCap        string  `json:"marketCap"`
	ExchangeName     string  `json:"exchangeName"`
}

// errorResponse is the provider's wire shape for request failures
type errorResponse struct {
	Message string `json:"message"`
}
