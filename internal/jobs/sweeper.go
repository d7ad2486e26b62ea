package jobs

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/session"
)

// SweeperJob evicts expired sessions in the background. Reads already evict
// lazily; the sweeper keeps abandoned sessions from accumulating unread.
type SweeperJob struct {
	sessions *session.Store
	interval time.Duration
	done     chan struct{}
}

func NewSweeperJob(sessions *session.Store, interval time.Duration) *SweeperJob {
	return &SweeperJob{
		sessions: sessions,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweeperJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweeper started")
}

func (j *SweeperJob) Stop() {
	close(j.done)
	log.Info().Msg("session sweeper stopped")
}

func (j *SweeperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweeperJob) sweep() {
	if purged := j.sessions.PurgeExpired(); purged > 0 {
		log.Info().Int("count", purged).Msg("purged expired sessions")
	}
}
