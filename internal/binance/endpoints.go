// Package binance is the exchange adapter: REST endpoint builders, paginated
// kline/snapshot/server-time fetchers, spot-symbol listing, and the aggTrade
// WebSocket dialer. Grounded on the session's Rust ancestor's market/binance
// module, translated from reqwest+tokio-tungstenite to net/http+gorilla.
package binance

import (
	"fmt"
	"strings"

	"aggconflate/internal/model"
)

const MaxKlinesPerRequest = 1_000

func wsEndpoint(kind model.MarketKind, symbol string) string {
	return fmt.Sprintf("wss://%s/ws/%s@aggTrade", kind.StreamHost(), strings.ToLower(symbol))
}

func snapshotEndpoint(kind model.MarketKind, symbol string) string {
	return fmt.Sprintf("%s%s/aggTrades?symbol=%s&limit=1",
		kind.RestBaseURL(), kind.APIPrefix(), strings.ToUpper(symbol))
}

func serverTimeEndpoint(kind model.MarketKind) string {
	return fmt.Sprintf("%s%s/time", kind.RestBaseURL(), kind.APIPrefix())
}

func klinesEndpoint(kind model.MarketKind, symbol string, timeframe model.Timeframe, limit int, endTimeMs *int64) string {
	endpoint := fmt.Sprintf("%s%s/klines?symbol=%s&interval=%s&limit=%d",
		kind.RestBaseURL(), kind.APIPrefix(), strings.ToUpper(symbol), timeframe, limit)
	if endTimeMs != nil {
		endpoint += fmt.Sprintf("&endTime=%d", *endTimeMs)
	}
	return endpoint
}

func oldestKlineProbeEndpoint(kind model.MarketKind, symbol string, timeframe model.Timeframe) string {
	return fmt.Sprintf("%s%s/klines?symbol=%s&interval=%s&limit=1&startTime=0",
		kind.RestBaseURL(), kind.APIPrefix(), strings.ToUpper(symbol), timeframe)
}

// spotSymbolsEndpoint is only meaningful against the spot REST host — spot
// symbol discovery has no futures equivalent in this engine's scope.
func spotSymbolsEndpoint() string {
	return model.MarketSpot.RestBaseURL() + model.MarketSpot.APIPrefix() + "/exchangeInfo?permissions=SPOT"
}
