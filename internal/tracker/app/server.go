// Package app assembles the tracker runtime: the sqlite store, the service,
// the periodic settle loop, and the gRPC and HTTP listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/rollcall/internal/tracker/domain"
	"github.com/louisbranch/rollcall/internal/tracker/loot"
	"github.com/louisbranch/rollcall/internal/tracker/service"
	trackersqlite "github.com/louisbranch/rollcall/internal/tracker/storage/sqlite"
)

// DefaultTickInterval is how often running sessions are settled when the
// options leave the interval unset.
const DefaultTickInterval = 15 * time.Second

// Options configures a tracker server.
type Options struct {
	// GRPCPort is the port for the gRPC listener (health service).
	GRPCPort int
	// HTTPAddr is the address for the HTTP listener. Empty disables HTTP.
	HTTPAddr string
	// DBPath locates the sqlite database file. Parent directories are
	// created as needed.
	DBPath string
	// TickInterval is the settle cadence for running sessions.
	TickInterval time.Duration
	// LootTiersPath optionally points at a CSV of loot tiers. Empty keeps
	// the reward config without loot tiers.
	LootTiersPath string
}

// Server hosts the tracker service.
type Server struct {
	listener     net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	store        *trackersqlite.Store
	service      *service.Service
	httpListener net.Listener
	httpServer   *http.Server
	tickInterval time.Duration
}

// New creates a configured tracker server from the provided options.
func New(opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.GRPCPort))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", opts.GRPCPort, err)
	}
	store, err := openTrackerStore(opts.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	rewards, err := loadRewardConfig(opts.LootTiersPath)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	svc := service.New(service.Stores{
		Session:     store,
		Participant: store,
		Ledger:      store,
	}, rewards)

	var httpListener net.Listener
	var httpServer *http.Server
	if strings.TrimSpace(opts.HTTPAddr) != "" {
		httpListener, err = net.Listen("tcp", opts.HTTPAddr)
		if err != nil {
			_ = listener.Close()
			_ = store.Close()
			return nil, fmt.Errorf("listen on http addr %s: %w", opts.HTTPAddr, err)
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		httpServer = &http.Server{Handler: mux}
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("rollcall.tracker", grpc_health_v1.HealthCheckResponse_SERVING)

	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}

	return &Server{
		listener:     listener,
		grpcServer:   grpcServer,
		health:       healthServer,
		store:        store,
		service:      svc,
		httpListener: httpListener,
		httpServer:   httpServer,
		tickInterval: tickInterval,
	}, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Service exposes the tracker service for callers embedding the server.
func (s *Server) Service() *service.Service {
	if s == nil {
		return nil
	}
	return s.service
}

// Run creates and serves a tracker server until the context ends.
func Run(ctx context.Context, opts Options) error {
	server, err := New(opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the tracker server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.startTicks(serverCtx)

	log.Printf("tracker server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	httpErr := make(chan error, 1)
	if s.httpServer != nil && s.httpListener != nil {
		log.Printf("tracker HTTP server listening at %v", s.httpListener.Addr())
		go func() {
			httpErr <- s.httpServer.Serve(s.httpListener)
		}()
	}

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}

	shutdownGRPC := func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.httpServer.Shutdown(shutdownCtx)
		}
	}

	select {
	case <-ctx.Done():
		shutdownGRPC()
		shutdownHTTP()
		err := <-serveErr
		return handleErr(err)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		shutdownGRPC()
		grpcErr := <-serveErr
		if handled := handleErr(grpcErr); handled != nil {
			return handled
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startTicks settles running sessions on a fixed cadence until the context
// ends. Tick failures are logged and retried on the next interval.
func (s *Server) startTicks(ctx context.Context) {
	if s == nil || s.service == nil || s.tickInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := s.service.Tick(ctx, now.UTC()); err != nil {
					log.Printf("settle tick: %v", err)
				}
			}
		}
	}()
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close tracker store: %v", err)
	}
}

func openTrackerStore(path string) (*trackersqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join("data", "tracker.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := trackersqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tracker sqlite store: %w", err)
	}
	return store, nil
}

func loadRewardConfig(lootTiersPath string) (domain.RewardConfig, error) {
	rewards := domain.DefaultRewardConfig()
	if strings.TrimSpace(lootTiersPath) == "" {
		return rewards, nil
	}
	tiers, err := loot.LoadFile(lootTiersPath)
	if err != nil {
		return domain.RewardConfig{}, fmt.Errorf("load loot tiers: %w", err)
	}
	rewards.LootTiers = tiers
	return rewards, nil
}
