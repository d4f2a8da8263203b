package model

// AggTradeEvent is a decoded Binance aggTrade payload.
type AggTradeEvent struct {
	EventTimeMs      int64
	TradeTimeMs      int64
	AggregateTradeID uint64
	Price            float64
	Quantity         float64
	IsBuyerMaker     bool
}

// Direction returns -1 when the buyer is the maker (an aggressive sell hit
// a resting bid) and +1 otherwise.
func (e AggTradeEvent) Direction() int {
	if e.IsBuyerMaker {
		return -1
	}
	return 1
}

// Notional is price * quantity, used as a noise filter threshold.
func (e AggTradeEvent) Notional() float64 {
	return e.Price * e.Quantity
}

// Candle is a bucket-aligned OHLCV candle.
type Candle struct {
	OpenTimeMs int64   `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
}

// DeltaCandle is a signed-volume-delta candle: it tracks the running sum of
// signed trade volume within a bucket, not price.
type DeltaCandle struct {
	OpenTimeMs int64   `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
}

// Tick is the conflated per-frame trade summary: last price, summed
// quantity, last direction and time among eligible trades since the last
// drain.
type Tick struct {
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
	Direction int     `json:"d"`
	TimeMs    int64   `json:"t"`
}
