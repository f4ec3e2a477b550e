package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"

	"visitplan/internal/config"
	"visitplan/internal/distance"
	"visitplan/internal/metrics"
	"visitplan/internal/opt"
	"visitplan/internal/planner"
	"visitplan/internal/webhooks"
)

type pinger interface{ Ping(ctx context.Context) error }

type Server struct {
	Config  *config.Config
	Log     zerolog.Logger
	Planner *planner.Planner
	Broker  EventBroker
	Stats   *opt.StatsStore
	Limiter *rate.Limiter
	// Webhooks is nil unless a webhook URL is configured.
	Webhooks *webhooks.Worker

	pingers    []pinger
	closers    []io.Closer
	stopWorker context.CancelFunc
}

// NewServer wires the distance provider, travel cache and progress broker
// selected by cfg.
func NewServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{
		Config:  cfg,
		Log:     log,
		Stats:   opt.NewStatsStore(cfg.Server.StatsRetention),
		Limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.OptimizePerSec), cfg.RateLimit.Burst),
	}
	provider, err := s.provider(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Planner = planner.New(cfg.Optimizer, cfg.Visits, provider, log.With().Str("component", "planner").Logger())

	switch cfg.Broker.Driver {
	case "redis":
		rb, err := NewRedisBroker(cfg.Broker.RedisURL, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("broker: %w", err)
		}
		s.Broker = rb
		s.pingers = append(s.pingers, rb)
		s.closers = append(s.closers, rb)
	default:
		s.Broker = NewBroker()
	}

	if wc := cfg.Webhooks; wc.URL != "" {
		s.Webhooks = webhooks.NewWorker(wc.URL, wc.Secret, wc.MaxAttempts, wc.QueueSize, wc.Timeout(),
			log.With().Str("component", "webhooks").Logger())
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.stopWorker = cancel
		s.Webhooks.Start(wctx)
	}
	return s, nil
}

func (s *Server) provider(ctx context.Context) (distance.MatrixProvider, error) {
	dc := s.Config.Distance
	var base distance.MatrixProvider = metered{name: dc.Provider, next: distance.FromConfig(dc)}

	cc := s.Config.Cache
	var cache distance.Cache
	switch cc.Driver {
	case "none":
		return base, nil
	case "redis":
		rc, err := distance.NewRedisCacheURL(cc.RedisURL, "", cc.TTL())
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rc)
		cache = rc
	case "postgres":
		pc, err := distance.NewPostgresCache(cc.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("travel cache: %w", err)
		}
		s.closers = append(s.closers, pc)
		s.pingers = append(s.pingers, pingFunc(pc.DB.PingContext))
		if err := pc.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		cache = pc
	default:
		cache = distance.NewMemoryCache()
	}
	return &distance.CachedProvider{
		Next:  base,
		Cache: cache,
		Log:   s.Log.With().Str("component", "travel-cache").Logger(),
	}, nil
}

// Routes returns the HTTP handler with logging and metrics middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Optimization
	mux.HandleFunc("/v1/optimize", s.OptimizeHandler)
	mux.HandleFunc("/v1/optimizer/config", s.OptimizerConfigHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // /stats, /ws

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	return s.logMiddleware(mux)
}

func (s *Server) Close() {
	if s.stopWorker != nil {
		s.stopWorker()
		s.Webhooks.Wait()
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.Log.Warn().Err(err).Msg("close failed")
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// metered counts matrix requests per provider and outcome.
type metered struct {
	name string
	next distance.MatrixProvider
}

func (m metered) Matrix(ctx context.Context, pts []distance.Point) (*mat.Dense, error) {
	out, err := m.next.Matrix(ctx, pts)
	status := "ok"
	switch {
	case errors.Is(err, distance.ErrUnroutable):
		status = "unroutable"
	case err != nil:
		status = "error"
	}
	metrics.MatrixRequests.WithLabelValues(m.name, status).Inc()
	return out, err
}
