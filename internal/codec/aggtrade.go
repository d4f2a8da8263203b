// Package codec decodes raw aggTrade wire frames. It sits on the hot path
// between the WebSocket read loop and conflated-state apply, so it uses
// bytedance/sonic rather than encoding/json for lower per-message overhead.
package codec

import (
	"math"
	"strconv"

	"github.com/bytedance/sonic"

	"aggconflate/internal/errs"
	"aggconflate/internal/model"
)

// wireAggTrade mirrors Binance's aggTrade payload shape exactly. Price and
// quantity arrive as JSON strings, not numbers.
type wireAggTrade struct {
	EventType        string `json:"e"`
	EventTimeMs      int64  `json:"E"`
	AggregateTradeID uint64 `json:"a"`
	Price            string `json:"p"`
	Quantity         string `json:"q"`
	TradeTimeMs      int64  `json:"T"`
	IsBuyerMaker     bool   `json:"m"`
}

// DecodeAggTrade parses a single aggTrade wire frame. It never panics:
// malformed JSON, a wrong event type, or a non-finite/negative price or
// quantity all surface as an errs.InvalidArgument-kind error.
func DecodeAggTrade(frame []byte) (model.AggTradeEvent, error) {
	var wire wireAggTrade
	if err := sonic.Unmarshal(frame, &wire); err != nil {
		return model.AggTradeEvent{}, errs.Wrap(errs.InvalidArgument, "decode aggTrade frame", err)
	}

	if wire.EventType != "aggTrade" {
		return model.AggTradeEvent{}, errs.New(errs.InvalidArgument, "unexpected event type: "+wire.EventType)
	}

	price, err := strconv.ParseFloat(wire.Price, 64)
	if err != nil {
		return model.AggTradeEvent{}, errs.Wrap(errs.InvalidArgument, "parse price", err)
	}
	qty, err := strconv.ParseFloat(wire.Quantity, 64)
	if err != nil {
		return model.AggTradeEvent{}, errs.Wrap(errs.InvalidArgument, "parse quantity", err)
	}

	if !isFinitePositiveish(price) {
		return model.AggTradeEvent{}, errs.New(errs.InvalidArgument, "non-finite or negative price")
	}
	if !isFiniteNonNegative(qty) {
		return model.AggTradeEvent{}, errs.New(errs.InvalidArgument, "non-finite or negative quantity")
	}

	return model.AggTradeEvent{
		EventTimeMs:      wire.EventTimeMs,
		TradeTimeMs:      wire.TradeTimeMs,
		AggregateTradeID: wire.AggregateTradeID,
		Price:            price,
		Quantity:         qty,
		IsBuyerMaker:     wire.IsBuyerMaker,
	}, nil
}

func isFinitePositiveish(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
