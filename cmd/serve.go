package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadtrace/internal/enrich"
	"github.com/sells-group/leadtrace/internal/model"
)

var servePort int

// trackRequest is the beacon payload posted by the tracking snippet.
type trackRequest struct {
	IPAddress string  `json:"ip_address"`
	PageURL   string  `json:"page_url"`
	AnonID    string  `json:"anon_id"`
	TS        string  `json:"ts"`
	Email     string  `json:"email,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracking and lead lookup server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnrich(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(ctx, env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP surface: tracking beacon, lead lookup, and
// health. Enrichment triggered by the beacon runs in the background
// under baseCtx so it survives the request.
func newRouter(baseCtx context.Context, env *enrichEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/track", func(w http.ResponseWriter, req *http.Request) {
		var tr trackRequest
		if err := json.NewDecoder(req.Body).Decode(&tr); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		ip := tr.IPAddress
		if ip == "" {
			// Fall back to the connection's remote address.
			if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
				ip = host
			}
		}
		if net.ParseIP(ip) == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ip_address is required"})
			return
		}

		eventID := uuid.New().String()
		event := enrich.Event{IP: ip, Email: tr.Email}
		if tr.Lat != 0 || tr.Lon != 0 {
			event.Lat, event.Lon = tr.Lat, tr.Lon
			event.HasLocation = true
		}

		// The beacon response must return fast; enrichment happens
		// off-request.
		go func() {
			res, err := env.Orchestrator.Resolve(baseCtx, event)
			if err != nil {
				zap.L().Error("track enrichment failed",
					zap.String("event_id", eventID),
					zap.String("ip", ip),
					zap.Error(err),
				)
				return
			}
			domain := ""
			if res.Identity != nil {
				domain = res.Identity.Domain
			}
			zap.L().Info("track enrichment complete",
				zap.String("event_id", eventID),
				zap.String("ip", ip),
				zap.String("page_url", tr.PageURL),
				zap.String("anon_id", tr.AnonID),
				zap.String("domain", domain),
				zap.Bool("from_cache", res.FromCache),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"event_id": eventID,
		})
	})

	r.Get("/v1/leads/{ip}", func(w http.ResponseWriter, req *http.Request) {
		ip := chi.URLParam(req, "ip")
		if net.ParseIP(ip) == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ip"})
			return
		}

		rec, err := env.Store.GetRecord(req.Context(), ip)
		if err != nil {
			zap.L().Error("lead lookup failed", zap.String("ip", ip), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		if rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown ip"})
			return
		}

		var people []model.Person
		if rec.Domain != "" {
			people, err = env.Store.GetPeople(req.Context(), rec.Domain)
			if err != nil {
				zap.L().Warn("people lookup failed", zap.String("domain", rec.Domain), zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, struct {
			Record *model.EnrichmentRecord `json:"record"`
			People []model.Person          `json:"people,omitempty"`
		}{rec, people})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
