package session

import (
	"context"
	"log/slog"

	"aggconflate/internal/binance"
	"aggconflate/internal/conflate"
	"aggconflate/internal/model"
)

// HistoryLoader is the one-shot paginated REST bootstrap of OHLC and
// signed-delta candle history. It can run before or concurrently with the
// producer (Config.StartupMode).
type HistoryLoader struct {
	cfg      model.Config
	state    *conflate.State
	rest     *binance.RestClient
	observer Observer
	log      *slog.Logger
}

func NewHistoryLoader(cfg model.Config, state *conflate.State, rest *binance.RestClient, observer Observer, log *slog.Logger) *HistoryLoader {
	return &HistoryLoader{cfg: cfg, state: state, rest: rest, observer: observer, log: log}
}

// Run fetches both series. OHLC failure surfaces an error status but does
// not propagate; delta failure is logged and tolerated — neither leg ever
// terminates the session.
func (h *HistoryLoader) Run(ctx context.Context) {
	type ohlcResult struct {
		candles []model.Candle
		err     error
	}
	type deltaResult struct {
		candles []model.DeltaCandle
		err     error
	}

	ohlcCh := make(chan ohlcResult, 1)
	deltaCh := make(chan deltaResult, 1)

	go func() {
		candles, err := h.rest.FetchKlinesHistoryWithProgress(ctx, h.cfg.Symbol, h.cfg.Timeframe, h.cfg.HistoryLimit,
			func(pagesFetched, candlesFetched, estimatedTotal int, progressPct float64, done bool) {
				h.observer.PublishHistoryProgress(model.HistoryProgress{
					PagesFetched:   pagesFetched,
					CandlesFetched: candlesFetched,
					EstimatedTotal: estimatedTotal,
					ProgressPct:    progressPct,
					Done:           done,
				})
			})
		ohlcCh <- ohlcResult{candles, err}
	}()
	go func() {
		candles, err := h.rest.FetchKlinesDeltaHistory(ctx, h.cfg.Symbol, h.cfg.Timeframe, h.cfg.HistoryLimit)
		deltaCh <- deltaResult{candles, err}
	}()

	ohlc := <-ohlcCh
	delta := <-deltaCh

	if ohlc.err != nil {
		h.log.Error("ohlc history fetch failed", "err", ohlc.err)
		h.observer.PublishStatus(model.StatusSnapshot{
			State:     model.StateError,
			Symbol:    h.cfg.Symbol,
			Timeframe: h.cfg.Timeframe,
			Reason:    "ohlc history fetch failed: " + ohlc.err.Error(),
		})
	} else if len(ohlc.candles) > 0 {
		last := ohlc.candles[len(ohlc.candles)-1]
		h.state.MergeHistoryCandle(last)
		h.observer.PublishBootstrap("candles", model.Bootstrap{
			Symbol: h.cfg.Symbol, Timeframe: h.cfg.Timeframe, Candles: ohlc.candles,
		})
	}

	if delta.err != nil {
		h.log.Warn("delta history fetch failed", "err", delta.err)
	} else if len(delta.candles) > 0 {
		last := delta.candles[len(delta.candles)-1]
		h.state.MergeHistoryDeltaCandle(last)
		h.observer.PublishBootstrap("delta_candles", model.Bootstrap{
			Symbol: h.cfg.Symbol, Timeframe: h.cfg.Timeframe, Candles: delta.candles,
		})
	}
}
