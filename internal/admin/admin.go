// Package admin exposes the operational monitoring surface consumed by the
// admin UI: active session counts, a session snapshot, and force-logout.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/wardcast/internal/broker"
	"github.com/wolfeidau/wardcast/internal/store"
)

type sessionInfo struct {
	Token        string    `json:"token"`
	PrincipalID  string    `json:"principal_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	RoleDisplay  string    `json:"role_display"`
	Staff        bool      `json:"staff"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Persistent   bool      `json:"persistent"`
	// ExpiresIn is seconds until the sweep may evict the session, -1 for
	// persistent sessions.
	ExpiresIn int64 `json:"expires_in"`
}

type sessionsResponse struct {
	Count    int           `json:"count"`
	Sessions []sessionInfo `json:"sessions"`
}

type countResponse struct {
	Count int `json:"count"`
}

// Handler returns the monitoring HTTP handler.
func Handler(sessions store.SessionStore, b *broker.Broker, log zerolog.Logger) http.Handler {
	timeout := sessions.Timeout()
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		list, err := sessions.List(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to list sessions")
			http.Error(w, "failed to list sessions", http.StatusInternalServerError)
			return
		}

		now := time.Now()
		resp := sessionsResponse{Count: len(list), Sessions: make([]sessionInfo, 0, len(list))}
		for _, s := range list {
			expiresIn := int64(-1)
			if !s.Persistent {
				expiresIn = int64(s.RemainingTTL(timeout, now).Seconds())
			}

			resp.Sessions = append(resp.Sessions, sessionInfo{
				Token:        s.Token,
				PrincipalID:  s.Principal.ID,
				Username:     s.Principal.Username,
				FullName:     s.Principal.FullName,
				Role:         string(s.Principal.Role),
				RoleDisplay:  s.Principal.Role.DisplayName(),
				Staff:        s.Principal.Role.IsStaff(),
				CreatedAt:    s.CreatedAt,
				LastActivity: s.LastActivity,
				Persistent:   s.Persistent,
				ExpiresIn:    expiresIn,
			})
		}

		writeJSON(w, resp, log)
	})

	mux.HandleFunc("DELETE /v1/sessions/{token}", func(w http.ResponseWriter, r *http.Request) {
		token := r.PathValue("token")

		disconnected := b.DisconnectSession(r.Context(), token)
		log.Info().Bool("disconnected", disconnected).Msg("session force logout")

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /v1/connections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, countResponse{Count: b.ConnectedCount()}, log)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
