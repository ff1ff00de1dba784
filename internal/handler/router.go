/*
Package handler provides the HTTP handlers and routing setup for the presentation bridge.

This file defines the main Router, applying middleware like logging, CORS and IP-based
rate limiting before delegating requests to the session, metrics and stream handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatclient/internal/pkg/limiter"
	"chatclient/internal/pkg/logx"
	"chatclient/internal/pkg/resp"
)

const (
	StreamRate  = 0.2
	StreamBurst = 5
)

// Router sets up the bridge routing table. ctx bounds the limiter cleanup goroutines.
func Router(ctx context.Context, deps *AppDeps, hub *StateHub) http.Handler {
	apiLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.RateLimit.RPS), deps.Config.RateLimit.Burst)
	streamLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(StreamRate), StreamBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":     "ok",
			"service":    "chatclient bridge",
			"connection": deps.Session.Snapshot().ConnectionStatus.String(),
		}
		resp.RespondSuccess(w, r, data)
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(apiLimiter.Middleware)

		api.Get("/state", HandleGetState(deps))
		api.Post("/login", HandleLogin(deps))
		api.Post("/logout", HandleLogout(deps))
		api.Post("/messages", HandleSendMessage(deps))
		api.Post("/typing", HandleSetTyping(deps))
	})

	r.Get("/ws/state", HandleStateStream(hub, wsUpgrader, streamLimiter))

	return r
}
