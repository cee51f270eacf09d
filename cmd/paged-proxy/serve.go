package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/paged-client/pkg/client"
	"github.com/Sternrassler/paged-client/pkg/fetch"
	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/Sternrassler/paged-client/pkg/metrics"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	portFlag            = "port"
	shutdownTimeoutFlag = "shutdown-timeout"

	// flushEvery is the number of records written between flushes.
	flushEvery = 64
)

// Response headers describing the first page.
const (
	HeaderFirstPage     = "X-First-Page"
	HeaderFirstPageNext = "X-First-Page-Next"
	HeaderTriples       = "X-Triples"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /deref, /health, /ready and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := readConfig(v)
			if err != nil {
				return err
			}
			setupLogging(cfg, cmd)

			ctx := cmd.Context()
			c, redisClient, cleanup, err := newClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := newServer(c, redisClient, cfg)
			return srv.run(ctx, ":"+v.GetString(portFlag), v.GetDuration(shutdownTimeoutFlag))
		},
	}

	flags := cmd.Flags()
	flags.String(portFlag, "8080", "port to listen on")
	flags.Duration(shutdownTimeoutFlag, 10*time.Second, "time allowed for in-flight requests on shutdown")
	mustBindPFlag(v, portFlag, flags.Lookup(portFlag))
	mustBindPFlag(v, shutdownTimeoutFlag, flags.Lookup(shutdownTimeoutFlag))

	return cmd
}

type server struct {
	getter fetch.Getter
	redis  *redis.Client
	cfg    Config
	logger zerolog.Logger
}

func newServer(getter fetch.Getter, redisClient *redis.Client, cfg Config) *server {
	return &server{
		getter: getter,
		redis:  redisClient,
		cfg:    cfg,
		logger: logging.NewLogger("proxy"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/deref", s.derefHandler)
	return mux
}

func (s *server) run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", addr).
			Str("user_agent", s.cfg.UserAgent).
			Bool("redis", s.redis != nil).
			Msg("Starting paged proxy")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis not reachable")
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// derefHandler streams the records of the chain starting at ?url= as NDJSON.
// ?format= and ?items= override the configured format and JSON items path.
func (s *server) derefHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	target := query.Get("url")
	if err := validateTarget(target); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	format := s.cfg.Format
	if f := query.Get("format"); f != "" {
		format = f
	}
	if format != formatRDF && format != formatJSON {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown format %q", format))
		return
	}
	itemsPath := s.cfg.ItemsPath
	if p := query.Get("items"); p != "" {
		itemsPath = p
	}

	ctx := r.Context()
	logger := s.logger.With().Str("url", target).Logger()
	start := time.Now()

	res, err := dereference(ctx, s.getter, s.cfg, format, itemsPath, target)
	if err != nil {
		logger.Warn().Err(err).Msg("Dereference failed")
		writeError(w, statusFor(err), err)
		return
	}
	defer res.Data.Stop()

	// The first record decides whether the response can still fail with a
	// status code.
	first, err := res.Data.Next(ctx)
	if err != nil && !pagination.IsDone(err) {
		logger.Warn().Err(err).Msg("First records failed")
		writeError(w, statusFor(err), err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set(HeaderFirstPage, res.FirstPageURL)
	h.Set(HeaderTriples, strconv.FormatBool(res.Triples))
	if res.FirstPageMetadata.Settled() {
		if md, err := res.FirstPageMetadata.Wait(ctx); err == nil && md.HasNext() {
			h.Set(HeaderFirstPageNext, md.Next)
		}
	}
	w.WriteHeader(http.StatusOK)

	if pagination.IsDone(err) {
		return
	}

	flusher, _ := w.(http.Flusher)
	records := 0
	line := first
	for {
		if _, werr := w.Write(append(line, '\n')); werr != nil {
			logger.Debug().Err(werr).Msg("Client went away")
			return
		}
		records++
		if flusher != nil && records%flushEvery == 0 {
			flusher.Flush()
		}

		line, err = res.Data.Next(ctx)
		if err != nil {
			break
		}
	}

	if !pagination.IsDone(err) {
		logger.Error().Err(err).Int("records", records).Msg("Stream failed after headers were sent")
		trailer, _ := json.Marshal(map[string]string{"error": err.Error()})
		w.Write(append(trailer, '\n'))
		return
	}

	logger.Info().
		Int("records", records).
		Dur("duration", time.Since(start)).
		Msg("Dereferenced")
}

func validateTarget(target string) error {
	if target == "" {
		return errors.New("missing url parameter")
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid url %q: want an absolute http(s) URL", target)
	}
	return nil
}

// statusFor maps a dereference failure to a response status.
func statusFor(err error) int {
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
