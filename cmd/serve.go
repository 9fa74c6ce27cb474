package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/monitoring"
	"github.com/sells-group/landuse-cli/internal/schema"
	"github.com/sells-group/landuse-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history and the active schema over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := resolvePort(servePort, cfg.Server.Port)
		cfg.Server.Port = port
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		return startServer(ctx, buildRouter(st, reg), port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// buildRouter wires the read-only API.
func buildRouter(st store.Store, reg *schema.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, schemaView(reg))
	})

	collector := monitoring.NewCollector(st)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		hours := 24
		if v := r.URL.Query().Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "hours must be a positive integer")
				return
			}
			hours = n
		}
		snap, err := collector.Collect(r.Context(), hours)
		if err != nil {
			zap.L().Error("collect metrics failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to collect metrics")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseRunFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		if runs == nil {
			runs = []store.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		run, err := st.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.String("run_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load run")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	f := store.RunFilter{
		Status:      store.RunStatus(q.Get("status")),
		LocationKey: q.Get("location"),
	}
	switch f.Status {
	case "", store.RunStatusRunning, store.RunStatusComplete, store.RunStatusFailed:
	default:
		return f, eris.Errorf("unknown status %q", f.Status)
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// startServer serves h until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
