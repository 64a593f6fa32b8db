package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"atelier/api/internal/repository"
)

// stalePendingAge is how long a PENDING payment may wait for its checkout
// session to complete before the nightly sweep cancels it.
const stalePendingAge = 24 * time.Hour

type Scheduler struct {
	cron     *cron.Cron
	payments *repository.PaymentRepository
	log      zerolog.Logger
}

func NewScheduler(payments *repository.PaymentRepository, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		payments: payments,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.sweepStalePayments); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for any in-flight job to finish before returning.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// sweepStalePayments cancels PENDING payments whose checkout session was
// abandoned. Payments already moved by a webhook are untouched.
func (s *Scheduler) sweepStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-stalePendingAge)
	n, err := s.payments.MarkStalePending(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("stale payment sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("canceled", n).Msg("stale pending payments canceled")
	}
}
