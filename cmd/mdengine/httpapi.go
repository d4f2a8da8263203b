package main

import (
	"encoding/json"
	"net/http"

	"aggconflate/internal/model"
	"aggconflate/internal/persistence"
)

// preferencesHandler exposes the singleton market-preferences row: GET
// reads (seeding defaults on first use), PUT replaces it.
type preferencesHandler struct {
	store *persistence.Store
}

func (h preferencesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		prefs, err := h.store.GetPreferences()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, prefs)
	case http.MethodPut:
		var prefs persistence.Preferences
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		saved, err := h.store.SavePreferences(prefs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, saved)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// drawingsHandler lists/upserts/deletes chart drawings. GET and DELETE are
// scoped to a ?market_kind=&symbol=&timeframe= query triple; POST takes the
// scope from the drawing in the request body.
type drawingsHandler struct {
	store *persistence.Store
}

func (h drawingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		kind, symbol, tf, err := scopeFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		drawings, err := h.store.ListDrawings(kind, symbol, tf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, drawings)
	case http.MethodPost:
		var d persistence.Drawing
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		saved, err := h.store.UpsertDrawing(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, saved)
	case http.MethodDelete:
		kind, symbol, tf, err := scopeFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		removed, err := h.store.DeleteDrawing(r.URL.Query().Get("id"), kind, symbol, tf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]bool{"removed": removed})
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func scopeFromQuery(r *http.Request) (model.MarketKind, string, model.Timeframe, error) {
	q := r.URL.Query()
	kind, err := model.ParseMarketKind(q.Get("market_kind"))
	if err != nil {
		return "", "", "", err
	}
	tf, err := model.ParseTimeframe(q.Get("timeframe"))
	if err != nil {
		return "", "", "", err
	}
	return kind, q.Get("symbol"), tf, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
