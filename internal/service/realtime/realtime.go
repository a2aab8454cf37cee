package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/metrics"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
)

// DefaultInterval is the poll period; delivery latency is bounded by it
const DefaultInterval = time.Second

type Option func(*Poller)

// WithInterval overrides the poll period, mostly for tests
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// Poller is a polling pub/sub over the notification and lesson stores.
// Each subscription runs its own ticker goroutine and keeps its own
// de-duplication state; nothing is shared between subscribers
type Poller struct {
	interval time.Duration
	storage  repository.Storage
	logger   logger.Logger
}

func New(storage repository.Storage, l logger.Logger, opts ...Option) *Poller {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	p := &Poller{
		interval: DefaultInterval,
		storage:  storage,
		logger:   l,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// SubscribeUserNotifications invokes cb exactly once per notification id
// created after the subscription started, in creation order. The seen set is
// seeded with everything that already exists so history is never replayed.
// The returned unsubscribe func stops the poll and is safe to call repeatedly
func (p *Poller) SubscribeUserNotifications(ctx context.Context, userID uuid.UUID, cb func(models.Notification)) (func(), error) {
	existing, err := p.storage.Notification().ListForUser(ctx, userID, repository.ListNotificationsOpts{OldestFirst: true})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(existing))
	for _, n := range existing {
		seen[n.ID] = struct{}{}
	}

	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				p.deliverNew(ctx, userID, seen, cb)
			}
		}
	}()

	return unsubscribeOnce(stop), nil
}

func (p *Poller) deliverNew(ctx context.Context, userID uuid.UUID, seen map[uuid.UUID]struct{}, cb func(models.Notification)) {
	start := time.Now()
	defer func() {
		metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	}()

	notifications, err := p.storage.Notification().ListForUser(ctx, userID, repository.ListNotificationsOpts{OldestFirst: true})
	if err != nil {
		p.logger.Error("Notification poll failed", "user_id", userID, "error", err)
		return
	}

	for _, n := range notifications {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}

		cb(n)
		metrics.RealtimeDeliveries.Inc()
	}
}

// SubscribeLessonUpdates watches one lesson row. The first tick only records
// the current updated_at as baseline; afterwards every observed change fires
// cb once with the full snapshot, coalescing updates between ticks
func (p *Poller) SubscribeLessonUpdates(ctx context.Context, lessonID uuid.UUID, cb func(models.Lesson)) (func(), error) {
	// Fail subscriptions to unknown lessons right away
	_, err := p.storage.Lesson().GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var baseline time.Time
		baselined := false

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				lesson, err := p.storage.Lesson().GetLesson(ctx, lessonID)
				if err != nil {
					p.logger.Error("Lesson poll failed", "lesson_id", lessonID, "error", err)
					continue
				}

				if !baselined {
					baseline = lesson.UpdatedAt
					baselined = true
					continue
				}

				if lesson.UpdatedAt.After(baseline) {
					baseline = lesson.UpdatedAt
					cb(lesson)
					metrics.RealtimeDeliveries.Inc()
				}
			}
		}
	}()

	return unsubscribeOnce(stop), nil
}

func unsubscribeOnce(stop chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
		})
	}
}
