package expirer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peertutor/coinledger/internal/apperrors"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/metrics"
	"github.com/peertutor/coinledger/internal/models"
)

const (
	defaultCountWorkers  = 4
	defaultSweepInterval = time.Minute
	defaultBatchSize     = 100
)

type matchingService interface {
	ListExpired(ctx context.Context, limit int) ([]models.MatchRequest, error)
	ExpireRequest(ctx context.Context, req models.MatchRequest) error
}

// Sweeper proactively expires pending match requests past their deadline so
// the refund does not depend on somebody happening to read the request.
// The lazy check on the list paths stays as a correctness backstop.
type Sweeper struct {
	interval     time.Duration
	batchSize    int
	countWorkers int

	matching matchingService
	logger   logger.Logger
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = d
	}
}

func New(matching matchingService, l logger.Logger, opts ...Option) *Sweeper {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	s := &Sweeper{
		interval:     defaultSweepInterval,
		batchSize:    defaultBatchSize,
		countWorkers: defaultCountWorkers,
		matching:     matching,
		logger:       l,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run starts the producer and workers; the returned channel closes once
// everything has drained after context cancellation
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	requests := make(chan models.MatchRequest)

	producerStopped := s.produce(ctx, requests)
	workersStopped := s.consume(ctx, requests)

	go func() {
		defer close(idleStopped)
		<-producerStopped
		close(requests)
		<-workersStopped
		s.logger.Debug("Expiry sweeper stopped")
	}()

	return idleStopped
}

func (s *Sweeper) produce(ctx context.Context, out chan<- models.MatchRequest) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting expiry sweeper", "interval", s.interval, "batch_size", s.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Expiry producer stopped by context")
				return

			case <-ticker.C:
				expired, err := s.matching.ListExpired(ctx, s.batchSize)
				if err != nil {
					s.logger.Error("Failed to list expired match requests", "error", err)
					continue
				}

				for _, req := range expired {
					select {
					case <-ctx.Done():
						return
					case out <- req:
					}
				}
			}
		}
	}()

	return idleStopped
}

func (s *Sweeper) consume(ctx context.Context, in <-chan models.MatchRequest) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < s.countWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, in)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
	}()

	return idleStopped
}

func (s *Sweeper) worker(ctx context.Context, in <-chan models.MatchRequest) {
	for req := range in {
		err := s.matching.ExpireRequest(ctx, req)

		switch {
		case err == nil:
			metrics.ExpiredRequestsSwept.Inc()
			s.logger.Info("Expired match request refunded", "request_id", req.ID)

		case errors.Is(err, apperrors.ErrRequestAlreadyProcessed):
			// A lazy read path got there first
			s.logger.Debug("Match request already resolved", "request_id", req.ID)

		default:
			s.logger.Error("Failed to expire match request", "request_id", req.ID, "error", err)
		}
	}
}
