package model

import "aggconflate/internal/errs"

// MarketKind selects which Binance host family a session talks to.
type MarketKind string

const (
	MarketSpot        MarketKind = "spot"
	MarketFuturesUsdm MarketKind = "futures_usdm"
)

const DefaultMarketKind = MarketSpot

func ParseMarketKind(s string) (MarketKind, error) {
	switch MarketKind(s) {
	case MarketSpot, MarketFuturesUsdm:
		return MarketKind(s), nil
	default:
		return "", errs.New(errs.InvalidArgument, "unknown market kind: "+s)
	}
}

// StreamHost returns the websocket host for aggTrade streaming.
func (k MarketKind) StreamHost() string {
	if k == MarketFuturesUsdm {
		return "fstream.binance.com"
	}
	return "stream.binance.com:9443"
}

// RestBaseURL returns the REST API base for klines/snapshot/server-time.
func (k MarketKind) RestBaseURL() string {
	if k == MarketFuturesUsdm {
		return "https://fapi.binance.com"
	}
	return "https://api.binance.com"
}

// APIPrefix returns the REST path prefix ("/api/v3" or "/fapi/v1").
func (k MarketKind) APIPrefix() string {
	if k == MarketFuturesUsdm {
		return "/fapi/v1"
	}
	return "/api/v3"
}
