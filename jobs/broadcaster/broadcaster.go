// Package broadcaster drains the trade outbox into Kafka.
package broadcaster

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"matchbook/infra/metrics"
	exitwal "matchbook/infra/wal/exit"
)

type Config struct {
	Interval time.Duration
	// MaxRetries is how many failed attempts a record gets before it is
	// left alone. Zero means no limit.
	MaxRetries uint32
}

type Broadcaster struct {
	exitWAL   *exitwal.ExitWAL
	publisher Publisher
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Metrics
}

var errStopPass = errors.New("stop pass")

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	exitWAL *exitwal.ExitWAL,
	publisher Publisher,
	cfg Config,
	log *zap.Logger,
	m *metrics.Metrics,
) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New("matchbook")
	}
	return &Broadcaster{
		exitWAL:   exitWAL,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With(zap.String("component", "broadcaster")),
		metrics:   m,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start drains the outbox every interval until ctx is done. The returned
// channel is closed when the loop exits.
func (b *Broadcaster) Start(ctx context.Context) <-chan struct{} {
	b.log.Info("started", zap.Duration("interval", b.cfg.Interval))
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(b.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				b.log.Info("stopped")
				return
			case <-ticker.C:
				if _, err := b.RunOnce(ctx); err != nil {
					b.log.Error("outbox pass failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// RunOnce publishes pending records oldest first and returns how many
// were acknowledged. The pass stops at the first publish failure so
// events leave in order; the failed record is retried next pass.
func (b *Broadcaster) RunOnce(ctx context.Context) (int, error) {
	published := 0
	err := b.exitWAL.ScanPending(func(rec *exitwal.ExitRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.State == exitwal.StateFailed && b.cfg.MaxRetries > 0 && rec.Retries >= b.cfg.MaxRetries {
			return nil
		}

		if err := b.exitWAL.MarkSent(rec.Seq); err != nil {
			return err
		}

		key := strconv.AppendUint(nil, rec.Seq, 10)
		if err := b.publisher.Publish(ctx, key, rec.Payload); err != nil {
			b.metrics.PublishFailures.Inc()
			retries, merr := b.exitWAL.MarkFailed(rec.Seq)
			if merr != nil {
				return merr
			}
			fields := []zap.Field{zap.Uint64("seq", rec.Seq), zap.Uint32("retries", retries), zap.Error(err)}
			if b.cfg.MaxRetries > 0 && retries >= b.cfg.MaxRetries {
				b.log.Error("giving up on event", fields...)
			} else {
				b.log.Warn("publish failed", fields...)
			}
			return errStopPass
		}

		if err := b.exitWAL.MarkAcked(rec.Seq); err != nil {
			return err
		}
		b.metrics.EventsPublished.Inc()
		published++
		return nil
	})
	if errors.Is(err, errStopPass) {
		err = nil
	}
	return published, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
