package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/web3-frozen/position-fetchers/internal/monitor"
	"github.com/web3-frozen/position-fetchers/internal/position"
	"github.com/web3-frozen/position-fetchers/internal/store"
)

const defaultHistoryWindow = 24 * time.Hour

// HistoryReader returns stored liquidity totals of a fetcher.
type HistoryReader interface {
	LiquidityHistory(ctx context.Context, key string, since time.Time) ([]store.LiquidityPoint, error)
}

func Fetchers(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, engine.Registrations())
	}
}

// Positions returns the latest snapshot of the fetcher named by the
// app_id, group_id and network query parameters.
func Positions(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := lookupKey(w, r, engine)
		if !ok {
			return
		}

		snap, err := engine.Latest(r.Context(), key)
		if errors.Is(err, monitor.ErrNoSnapshot) {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"failed to load positions"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// Refresh runs the fetcher now and returns the new snapshot.
func Refresh(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := lookupKey(w, r, engine)
		if !ok {
			return
		}

		snap, err := engine.Refresh(r.Context(), key)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// History returns the liquidity totals of a fetcher over the window given by
// the since query parameter (a Go duration, default 24h).
func History(engine *monitor.Engine, h HistoryReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := lookupKey(w, r, engine)
		if !ok {
			return
		}

		window := defaultHistoryWindow
		if s := r.URL.Query().Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				http.Error(w, `{"error":"invalid since"}`, http.StatusBadRequest)
				return
			}
			window = d
		}

		points, err := h.LiquidityHistory(r.Context(), key, time.Now().Add(-window))
		if err != nil {
			http.Error(w, `{"error":"failed to load history"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, points)
	}
}

// lookupKey resolves the fetcher key of the request, writing a 400 or 404
// when it cannot.
func lookupKey(w http.ResponseWriter, r *http.Request, engine *monitor.Engine) (string, bool) {
	q := r.URL.Query()
	appID, groupID, network := q.Get("app_id"), q.Get("group_id"), q.Get("network")
	if appID == "" || groupID == "" || network == "" {
		http.Error(w, `{"error":"app_id, group_id and network required"}`, http.StatusBadRequest)
		return "", false
	}
	f, ok := engine.Lookup(appID, groupID, position.Network(network))
	if !ok {
		http.Error(w, `{"error":"unknown fetcher"}`, http.StatusNotFound)
		return "", false
	}
	return f.Registration().Key(), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
