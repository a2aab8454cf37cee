package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peertutor/coinledger/internal/db"
	"github.com/peertutor/coinledger/internal/handlers"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/metrics"
	"github.com/peertutor/coinledger/internal/repository/postgres"
	"github.com/peertutor/coinledger/internal/service/escrow"
	"github.com/peertutor/coinledger/internal/service/expirer"
	"github.com/peertutor/coinledger/internal/service/ledger"
	"github.com/peertutor/coinledger/internal/service/matching"
	"github.com/peertutor/coinledger/internal/service/notification"
	"github.com/peertutor/coinledger/internal/service/realtime"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *expirer.Sweeper
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	feeRate, err := decimal.NewFromString(c.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("invalid fee rate %q: %w", c.FeeRate, err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	notificationService := notification.NewService(storage, log)
	ledgerService := ledger.NewService(storage, notificationService, log)
	matchingService := matching.NewService(
		matching.Config{CoinCost: c.MatchCoinCost, TTL: c.MatchTTL},
		storage, notificationService, log,
	)
	escrowService := escrow.NewService(
		escrow.Config{FeeRate: feeRate},
		storage, notificationService, log,
	)
	poller := realtime.New(storage, log, realtime.WithInterval(c.PollInterval))
	sweeper := expirer.New(matchingService, log, expirer.WithInterval(c.SweepInterval))

	metrics.Register()

	mux := handlers.NewRouter(
		handlers.RouterConfig{SecretKey: c.SecretKey},
		storage.User(),
		ledgerService,
		matchingService,
		escrowService,
		notificationService,
		poller,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
		sweeper:    sweeper,
	}, nil
}

// Run starts the http server and the expiry sweeper and closes both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	return err
}
