package persistence

import (
	"path/filepath"
	"testing"

	"aggconflate/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetPreferencesSeedsDefaultsOnFirstUse(t *testing.T) {
	s := openTestStore(t)

	p, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if p.MarketKind != model.DefaultMarketKind || p.Symbol != model.DefaultSymbol || p.Timeframe != model.DefaultTimeframe {
		t.Fatalf("unexpected seeded defaults: %+v", p)
	}
}

func TestSavePreferencesRoundTrips(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.SavePreferences(Preferences{
		MarketKind:   model.MarketFuturesUsdm,
		Symbol:       "ETHUSDT",
		Timeframe:    model.TF5m,
		MagnetStrong: true,
	})
	if err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}
	if saved.MarketKind != model.MarketFuturesUsdm || saved.Symbol != "ETHUSDT" || saved.Timeframe != model.TF5m || !saved.MagnetStrong {
		t.Fatalf("unexpected saved preferences: %+v", saved)
	}

	reread, err := s.GetPreferences()
	if err != nil {
		t.Fatalf("GetPreferences: %v", err)
	}
	if reread != saved {
		t.Fatalf("reread preferences diverged: got %+v want %+v", reread, saved)
	}
}

func TestUpsertDrawingPreservesCreatedAtAcrossUpdates(t *testing.T) {
	s := openTestStore(t)

	first, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "trendLine", PayloadJSON: `{"x":1}`,
	})
	if err != nil {
		t.Fatalf("UpsertDrawing: %v", err)
	}

	second, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "trendLine", PayloadJSON: `{"x":2}`,
	})
	if err != nil {
		t.Fatalf("UpsertDrawing (update): %v", err)
	}

	if second.CreatedAtMs != first.CreatedAtMs {
		t.Fatalf("created_at_ms changed across update: %d -> %d", first.CreatedAtMs, second.CreatedAtMs)
	}
	if second.PayloadJSON != `{"x":2}` {
		t.Fatalf("payload not updated: %q", second.PayloadJSON)
	}
}

func TestListDrawingsScopesByKindSymbolTimeframe(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertDrawing(Drawing{ID: "a", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m, DrawingType: "horizontalLine", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("UpsertDrawing a: %v", err)
	}
	if _, err := s.UpsertDrawing(Drawing{ID: "b", MarketKind: model.MarketSpot, Symbol: "ETHUSDT", Timeframe: model.TF1m, DrawingType: "horizontalLine", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("UpsertDrawing b: %v", err)
	}

	drawings, err := s.ListDrawings(model.MarketSpot, "BTCUSDT", model.TF1m)
	if err != nil {
		t.Fatalf("ListDrawings: %v", err)
	}
	if len(drawings) != 1 || drawings[0].ID != "a" {
		t.Fatalf("unexpected scoped drawings: %+v", drawings)
	}
}

func TestDeleteDrawingReportsWhetherARowWasRemoved(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.UpsertDrawing(Drawing{ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m, DrawingType: "horizontalLine", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("UpsertDrawing: %v", err)
	}

	deleted, err := s.DeleteDrawing("d1", model.MarketSpot, "BTCUSDT", model.TF1m)
	if err != nil {
		t.Fatalf("DeleteDrawing: %v", err)
	}
	if !deleted {
		t.Fatalf("expected deletion to report true")
	}

	deletedAgain, err := s.DeleteDrawing("d1", model.MarketSpot, "BTCUSDT", model.TF1m)
	if err != nil {
		t.Fatalf("DeleteDrawing (again): %v", err)
	}
	if deletedAgain {
		t.Fatalf("expected second deletion to report false")
	}
}

func TestUpsertDrawingRejectsUnknownDrawingType(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "arrow", PayloadJSON: "{}",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown drawing_type")
	}
}

func TestUpsertDrawingRejectsMalformedColor(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "ruler", Color: "#ff0000", PayloadJSON: "{}",
	})
	if err == nil {
		t.Fatal("expected an error for a lowercase color")
	}
}

func TestUpsertDrawingRejectsOverlongLabel(t *testing.T) {
	s := openTestStore(t)

	label := make([]byte, maxLabelLen+1)
	for i := range label {
		label[i] = 'a'
	}
	_, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "ruler", Label: string(label), PayloadJSON: "{}",
	})
	if err == nil {
		t.Fatal("expected an error for a label over the length limit")
	}
}

func TestUpsertDrawingRejectsEmptyPayload(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpsertDrawing(Drawing{
		ID: "d1", MarketKind: model.MarketSpot, Symbol: "BTCUSDT", Timeframe: model.TF1m,
		DrawingType: "ruler", PayloadJSON: "",
	})
	if err == nil {
		t.Fatal("expected an error for an empty payload_json")
	}
}
