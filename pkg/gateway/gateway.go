// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/linqiu/chefmate/pkg/engine"
	"github.com/linqiu/chefmate/pkg/preference"
	"github.com/linqiu/chefmate/pkg/recipe"
)

var errEmptyUser = errors.New("user id is required")

// Gateway exposes the engine over HTTP and WebSocket.
type Gateway struct {
	engine *engine.Engine
	log    zerolog.Logger
	server *http.Server
}

func New(e *engine.Engine, log zerolog.Logger) *Gateway {
	return &Gateway{
		engine: e,
		log:    log.With().Str("component", "gateway").Logger(),
	}
}

// Handler builds the route table. Exposed separately so tests can mount
// it on httptest servers.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("POST /api/recommend", g.handleRecommend)
	mux.HandleFunc("GET /api/preference/{user}", g.handleGetPreference)
	mux.HandleFunc("POST /api/preference/{user}", g.handleUpdatePreference)
	mux.HandleFunc("DELETE /api/preference/{user}", g.handleDeletePreference)
	mux.HandleFunc("POST /api/fridge", g.handleFridge)
	mux.HandleFunc("GET /api/recipes/search", g.handleRecipeSearch)
	mux.HandleFunc("GET /api/profile/{user}", g.handleProfile)
	mux.HandleFunc("POST /api/session/{user}/clear", g.handleClearSession)
	mux.HandleFunc("DELETE /api/users/{user}", g.handleRemoveUser)
	mux.HandleFunc("GET /ws/{user}", g.handleWS)
	return g.logRequests(mux)
}

// Serve blocks until ctx is cancelled, then shuts the listener down
// gracefully.
func (g *Gateway) Serve(ctx context.Context, host string, port int) error {
	g.server = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info().Str("addr", g.server.Addr).Msg("gateway listening")
		errCh <- g.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		g.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"users":  len(g.engine.Users()),
	})
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	reply, err := g.engine.Chat(r.Context(), req.UserID, req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type recommendRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

func (g *Gateway) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	recs, err := g.engine.Recommend(r.Context(), req.UserID, req.Query)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if recs == nil {
		recs = []engine.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (g *Gateway) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	pref, err := g.engine.GetPreference(r.Context(), r.PathValue("user"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

func (g *Gateway) handleUpdatePreference(w http.ResponseWriter, r *http.Request) {
	var update preference.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	merged, err := g.engine.UpdatePreference(r.Context(), r.PathValue("user"), update)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (g *Gateway) handleDeletePreference(w http.ResponseWriter, r *http.Request) {
	if err := g.engine.DeletePreference(r.Context(), r.PathValue("user")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type fridgeRequest struct {
	UserID string `json:"user_id"`
	engine.FridgeRequest
}

func (g *Gateway) handleFridge(w http.ResponseWriter, r *http.Request) {
	var req fridgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	state, err := g.engine.FridgeOp(r.Context(), req.UserID, req.FridgeRequest)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (g *Gateway) handleRecipeSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := 10
	if raw := q.Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid k %q", raw))
			return
		}
		k = parsed
	}
	found, err := g.engine.SearchRecipes(q.Get("q"), k, recipe.Filter{
		Cuisine:    q.Get("cuisine"),
		Difficulty: q.Get("difficulty"),
		Tag:        q.Get("tag"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if found == nil {
		found = []recipe.Recipe{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": found})
}

func (g *Gateway) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := g.engine.GetProfile(r.Context(), r.PathValue("user"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (g *Gateway) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := g.engine.ClearSession(r.PathValue("user")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (g *Gateway) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	if err := g.engine.RemoveUser(r.Context(), r.PathValue("user")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, preference.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
