package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/tuneid/internal/identify"
	"github.com/blacktop/tuneid/internal/player"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8090", "control API listen address")
}

var serveCmd = &cobra.Command{
	Use:   "serve <stream-url>",
	Short: "Play a radio stream with a local HTTP control API",
	Long: `serve plays a stream like listen does, but is driven over HTTP
instead of the keyboard:

  POST   /identify   start a recognition attempt
  GET    /status     current status (idle or listening)
  GET    /history    recognized track history
  DELETE /history    clear the history`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := buildStack()
		if err != nil {
			return err
		}
		defer st.close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		return runServe(ctx, st, args[0])
	},
}

func runServe(ctx context.Context, st *stack, streamURL string) error {
	var status atomic.Value
	status.Store(identify.StatusIdle)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p := player.New(st.manager.IngestAudio)
		err := p.Play(ctx, streamURL)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Track status and log results; the API reads the latest status.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-st.manager.Statuses():
				status.Store(s)
			case ev := <-st.manager.Results():
				log.Info("Recognition finished", "kind", ev.Kind, "message", ev.Message)
			}
		}
	})

	server := &http.Server{
		Addr:    serveAddr,
		Handler: newControlRouter(st, &status),
	}

	g.Go(func() error {
		log.Info("Control API listening", "addr", serveAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newControlRouter(st *stack, status *atomic.Value) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/identify", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Title  string  `json:"title"`
			Artist *string `json:"artist"`
		}
		// The body is optional source metadata; ignore decode failures on
		// an empty body.
		json.NewDecoder(req.Body).Decode(&body)

		var source *identify.SourceMetadata
		if body.Title != "" {
			source = &identify.SourceMetadata{Title: body.Title, Artist: body.Artist}
		}

		if err := st.manager.IdentifyNow(source); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": string(identify.StatusListening)})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": string(status.Load().(identify.Status)),
		})
	})

	r.Get("/history", func(w http.ResponseWriter, req *http.Request) {
		tracks, err := st.manager.History()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": tracks})
	})

	r.Delete("/history", func(w http.ResponseWriter, req *http.Request) {
		if err := st.manager.ClearHistory(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}
