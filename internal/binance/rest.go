package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"aggconflate/internal/errs"
	"aggconflate/internal/model"
	"aggconflate/internal/resilience"
)

// RestClient is the low-volume REST control-plane client: server time,
// latest-trade snapshot, kline history, spot symbol listing. It is not on
// the hot path, so it uses plain encoding/json rather than the sonic codec
// reserved for aggTrade wire frames. Every call passes through a circuit
// breaker so a misbehaving exchange endpoint fails fast instead of piling
// up timeouts across the history loader and the resync path.
type RestClient struct {
	HTTP    *http.Client
	Kind    model.MarketKind
	breaker *resilience.CircuitBreaker
}

func NewRestClient(kind model.MarketKind) *RestClient {
	return &RestClient{
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Kind:    kind,
		breaker: resilience.NewCircuitBreaker(5, 15*time.Second),
	}
}

func (c *RestClient) getJSON(ctx context.Context, endpoint string, out any) error {
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errs.Wrap(errs.Network, "build request", err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return errs.Wrap(errs.Network, "request "+endpoint, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return errs.New(errs.Network, fmt.Sprintf("%s returned %d: %s", endpoint, resp.StatusCode, string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.Wrap(errs.JSONDecode, "decode response from "+endpoint, err)
		}
		return nil
	})
	if err == resilience.ErrCircuitOpen {
		return errs.Wrap(errs.Network, "circuit open for "+endpoint, err)
	}
	return err
}

// FetchServerTimeMs is the clock-sync probe's server-time source.
func (c *RestClient) FetchServerTimeMs(ctx context.Context) (int64, error) {
	var wire struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.getJSON(ctx, serverTimeEndpoint(c.Kind), &wire); err != nil {
		return 0, err
	}
	return wire.ServerTime, nil
}

// FetchLatestAggTradeSnapshot returns the exchange's current last-price and
// last-aggregate-trade-id, used to resync the conflated state after a
// sequence gap.
func (c *RestClient) FetchLatestAggTradeSnapshot(ctx context.Context, symbol string) (aggID uint64, price float64, err error) {
	var wire []struct {
		AggregateTradeID uint64 `json:"a"`
		Price            string `json:"p"`
	}
	if err := c.getJSON(ctx, snapshotEndpoint(c.Kind, symbol), &wire); err != nil {
		return 0, 0, err
	}
	if len(wire) == 0 {
		return 0, 0, errs.New(errs.InvalidArgument, "empty aggTrades snapshot payload")
	}

	latest := wire[0]
	parsedPrice, perr := strconv.ParseFloat(latest.Price, 64)
	if perr != nil {
		return 0, 0, errs.Wrap(errs.FloatParse, "parse snapshot price", perr)
	}
	return latest.AggregateTradeID, parsedPrice, nil
}

// klineRow is one row of Binance's kline array-of-arrays wire shape:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
//  numTrades, takerBuyBaseVolume, takerBuyQuoteVolume, ignore].
type klineRow struct {
	OpenTimeMs       int64
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Volume           float64
	TakerBuyBaseVol  float64
}

func (k *klineRow) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 10 {
		return fmt.Errorf("kline row has %d fields, want at least 10", len(raw))
	}

	var openTime float64
	if err := json.Unmarshal(raw[0], &openTime); err != nil {
		return err
	}
	fields := make([]string, 6)
	for i, idx := range []int{1, 2, 3, 4, 5, 9} {
		var s string
		if err := json.Unmarshal(raw[idx], &s); err != nil {
			return err
		}
		fields[i] = s
	}

	parse := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
	open, err := parse(fields[0])
	if err != nil {
		return err
	}
	high, err := parse(fields[1])
	if err != nil {
		return err
	}
	low, err := parse(fields[2])
	if err != nil {
		return err
	}
	closePrice, err := parse(fields[3])
	if err != nil {
		return err
	}
	volume, err := parse(fields[4])
	if err != nil {
		return err
	}
	takerBuyBase, err := parse(fields[5])
	if err != nil {
		return err
	}

	k.OpenTimeMs = int64(openTime)
	k.Open, k.High, k.Low, k.Close, k.Volume, k.TakerBuyBaseVol = open, high, low, closePrice, volume, takerBuyBase
	return nil
}

// fetchKlinesWireHistory walks endTime backward a page at a time until
// limit rows are collected or the exchange has no more history, then
// sorts, dedupes by open time, and truncates to the newest `limit` rows.
// onPage, if non-nil, is called after each page with running totals so a
// caller can report bootstrap progress.
func (c *RestClient) fetchKlinesWireHistory(ctx context.Context, symbol string, timeframe model.Timeframe, limit int, onPage func(pagesFetched, candlesFetched int)) ([]klineRow, error) {
	remaining := limit
	var endTime *int64
	rows := make([]klineRow, 0, limit)
	var previousOldest int64 = math.MaxInt64
	pages := 0

	for remaining > 0 {
		requestLimit := remaining
		if requestLimit > MaxKlinesPerRequest {
			requestLimit = MaxKlinesPerRequest
		}

		var page []klineRow
		endpoint := klinesEndpoint(c.Kind, symbol, timeframe, requestLimit, endTime)
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		oldestOpenTime := page[0].OpenTimeMs
		remaining -= len(page)
		rows = append(rows, page...)
		pages++
		if onPage != nil {
			onPage(pages, len(rows))
		}

		if len(page) < requestLimit || oldestOpenTime <= 0 || oldestOpenTime >= previousOldest {
			break
		}
		previousOldest = oldestOpenTime
		next := oldestOpenTime - 1
		endTime = &next
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].OpenTimeMs < rows[j].OpenTimeMs })
	rows = dedupeByOpenTime(rows)

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func dedupeByOpenTime(rows []klineRow) []klineRow {
	out := rows[:0:0]
	var lastOpenTime int64
	first := true
	for _, r := range rows {
		if !first && r.OpenTimeMs == lastOpenTime {
			continue
		}
		out = append(out, r)
		lastOpenTime = r.OpenTimeMs
		first = false
	}
	return out
}

// HistoryProgressFunc receives pagination progress during a history fetch.
type HistoryProgressFunc func(pagesFetched, candlesFetched, estimatedTotal int, progressPct float64, done bool)

// FetchKlinesHistory bootstraps OHLCV candle history for the given symbol
// and timeframe.
func (c *RestClient) FetchKlinesHistory(ctx context.Context, symbol string, timeframe model.Timeframe, limit int) ([]model.Candle, error) {
	return c.FetchKlinesHistoryWithProgress(ctx, symbol, timeframe, limit, nil)
}

// FetchKlinesHistoryWithProgress is FetchKlinesHistory with an optional
// progress callback. estimatedTotal is derived from a startTime=0,limit=1
// probe for the symbol's oldest candle, assuming "now" as the newest edge.
func (c *RestClient) FetchKlinesHistoryWithProgress(ctx context.Context, symbol string, timeframe model.Timeframe, limit int, progress HistoryProgressFunc) ([]model.Candle, error) {
	estimatedTotal := 0
	if progress != nil {
		if oldestMs, err := c.fetchOldestOpenTimeMs(ctx, symbol, timeframe); err == nil {
			estimatedTotal = estimateTotalCandles(oldestMs, time.Now().UnixMilli(), timeframe)
		}
	}

	onPage := func(pagesFetched, candlesFetched int) {
		if progress == nil {
			return
		}
		pct := 0.0
		if estimatedTotal > 0 {
			pct = float64(candlesFetched) / float64(estimatedTotal) * 100
			if pct > 99.9 {
				pct = 99.9
			}
			if pct < 0 {
				pct = 0
			}
		}
		progress(pagesFetched, candlesFetched, estimatedTotal, pct, false)
	}

	rows, err := c.fetchKlinesWireHistory(ctx, symbol, timeframe, limit, onPage)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(0, len(rows), estimatedTotal, 100, true)
	}
	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, model.Candle{
			OpenTimeMs: r.OpenTimeMs,
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
		})
	}
	return candles, nil
}

// FetchKlinesDeltaHistory bootstraps signed-volume-delta candle history:
// delta = taker_buy_volume - (volume - taker_buy_volume), with the OHLC
// fields repurposed to track the running delta's high/low/close.
func (c *RestClient) FetchKlinesDeltaHistory(ctx context.Context, symbol string, timeframe model.Timeframe, limit int) ([]model.DeltaCandle, error) {
	rows, err := c.fetchKlinesWireHistory(ctx, symbol, timeframe, limit, nil)
	if err != nil {
		return nil, err
	}

	candles := make([]model.DeltaCandle, 0, len(rows))
	for _, r := range rows {
		if !isFiniteNonNegative(r.Volume) || !isFiniteNonNegative(r.TakerBuyBaseVol) {
			return nil, errs.New(errs.InvalidArgument, "kline volume values must be finite and non-negative")
		}
		signedDelta := r.TakerBuyBaseVol - (r.Volume - r.TakerBuyBaseVol)
		candles = append(candles, model.DeltaCandle{
			OpenTimeMs: r.OpenTimeMs,
			Open:       0,
			High:       math.Max(signedDelta, 0),
			Low:        math.Min(signedDelta, 0),
			Close:      signedDelta,
			Volume:     r.Volume,
		})
	}
	return candles, nil
}

func isFiniteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// fetchOldestOpenTimeMs probes the symbol's earliest available candle via
// a startTime=0,limit=1 request, used only to estimate bootstrap progress.
func (c *RestClient) fetchOldestOpenTimeMs(ctx context.Context, symbol string, timeframe model.Timeframe) (int64, error) {
	var page []klineRow
	if err := c.getJSON(ctx, oldestKlineProbeEndpoint(c.Kind, symbol, timeframe), &page); err != nil {
		return 0, err
	}
	if len(page) == 0 {
		return 0, errs.New(errs.InvalidArgument, "empty oldest-kline probe payload")
	}
	return page[0].OpenTimeMs, nil
}

// estimateTotalCandles infers how many candles span [oldestMs, newestMs]
// at the given timeframe width.
func estimateTotalCandles(oldestMs, newestMs int64, timeframe model.Timeframe) int {
	width := timeframe.DurationMs()
	if width <= 0 || newestMs <= oldestMs {
		return 0
	}
	return int((newestMs-oldestMs)/width) + 1
}

// FetchSpotSymbols lists every currently-tradeable spot symbol, sorted and
// deduplicated. Spot-only: futures sessions have no equivalent endpoint.
func (c *RestClient) FetchSpotSymbols(ctx context.Context) ([]string, error) {
	var wire struct {
		Symbols []struct {
			Symbol               string `json:"symbol"`
			Status               string `json:"status"`
			IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
		} `json:"symbols"`
	}
	if err := c.getJSON(ctx, spotSymbolsEndpoint(), &wire); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(wire.Symbols))
	for _, s := range wire.Symbols {
		if s.IsSpotTradingAllowed && strings.EqualFold(s.Status, "TRADING") {
			symbols = append(symbols, s.Symbol)
		}
	}
	sort.Strings(symbols)
	symbols = dedupeStrings(symbols)
	return symbols, nil
}

func dedupeStrings(in []string) []string {
	out := in[:0:0]
	var last string
	first := true
	for _, s := range in {
		if !first && s == last {
			continue
		}
		out = append(out, s)
		last = s
		first = false
	}
	return out
}
