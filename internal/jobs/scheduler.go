package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const probeTimeout = 5 * time.Second

// HealthProber is the backend health check run on a schedule.
type HealthProber interface {
	Health(ctx context.Context) error
}

// UpGauge records the last probe outcome.
type UpGauge interface {
	SetBackendUp(up bool)
}

type Scheduler struct {
	cron   *cron.Cron
	spec   string
	prober HealthProber
	gauge  UpGauge
	log    zerolog.Logger

	mu   sync.Mutex
	last *bool
}

func NewScheduler(spec string, prober HealthProber, gauge UpGauge, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		spec:   spec,
		prober: prober,
		gauge:  gauge,
		log:    log.With().Str("component", "jobs").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.prober == nil || s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.probeBackend); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running probe to finish, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) probeBackend() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	err := s.prober.Health(ctx)
	up := err == nil
	if s.gauge != nil {
		s.gauge.SetBackendUp(up)
	}

	s.mu.Lock()
	changed := s.last == nil || *s.last != up
	s.last = &up
	s.mu.Unlock()

	if !changed {
		return
	}
	if up {
		s.log.Info().Msg("analysis backend reachable")
	} else {
		s.log.Warn().Err(err).Msg("analysis backend unreachable")
	}
}
