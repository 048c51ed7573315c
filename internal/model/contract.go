package model

// Contract is the normalized description of a tradable pair. Exchange
// adapters translate their own instrument schemas into this shape so the
// core never branches on exchange identity.
type Contract struct {
	Exchange          string  `json:"exchange"`
	Symbol            string  `json:"symbol"`     // e.g. "BTCUSDT"
	BaseAsset         string  `json:"base_asset"` // e.g. "BTC"
	QuoteAsset        string  `json:"quote_asset"`
	PricePrecision    int     `json:"price_precision"`
	QuantityPrecision int     `json:"quantity_precision"` // decimals of the qty step
	MinQuantity       float64 `json:"min_quantity"`
}

// Price is a best bid/ask snapshot for one symbol.
type Price struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Balance is the normalized wallet state for one asset.
type Balance struct {
	Asset     string  `json:"asset"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}
