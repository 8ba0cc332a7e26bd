package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/paramsweep/internal/db"
	"github.com/banshee-data/paramsweep/internal/httputil"
	"github.com/banshee-data/paramsweep/internal/monitoring"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run registry over HTTP",
		Long: `Serve exposes a run registry for inspection:

  /api/sweeps              recent sweeps as JSON
  /api/sweeps/{id}/runs    runs of one sweep (optional ?status=failed)
  /debug/tailsql/          live SQL console
  /debug/backup            gzipped snapshot of the database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("db")
			listen, _ := cmd.Flags().GetString("listen")

			database, err := db.NewDB(path)
			if err != nil {
				return err
			}
			defer database.Close()

			mux, err := newServeMux(database)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveHTTP(ctx, listen, mux)
		},
	}
	cmd.Flags().String("db", "runs.db", "Registry database path")
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	return cmd
}

func newServeMux(database *db.DB) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	if err := database.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	store := db.NewSweepStore(database.DB)

	mux.HandleFunc("GET /api/sweeps", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
				return
			}
			limit = n
		}
		sweeps, err := store.ListSweeps(limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if sweeps == nil {
			sweeps = []db.SweepRecord{}
		}
		httputil.WriteJSONOK(w, sweeps)
	})
	mux.HandleFunc("GET /api/sweeps/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		rec, err := store.GetSweep(id)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if rec == nil {
			httputil.NotFound(w, fmt.Sprintf("sweep %s not found", id))
			return
		}
		httputil.WriteJSONOK(w, rec)
	})
	mux.HandleFunc("GET /api/sweeps/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := store.ListRuns(r.PathValue("id"), r.URL.Query().Get("status"))
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		if runs == nil {
			runs = []db.RunRecord{}
		}
		httputil.WriteJSONOK(w, runs)
	})
	return mux, nil
}

// serveHTTP serves handler on addr until ctx is done, then shuts down.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
