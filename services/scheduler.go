package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs the periodic housekeeping jobs: stalled match
// forfeits and queue ticket expiry. The caller shuts the scheduler down.
func (s *MatchService) StartSweepScheduler(queue *MatchmakingService, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := s.ForfeitStale(context.Background())
			if err != nil {
				log.Printf("[Scheduler] forfeit sweep error: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[Scheduler] ⏱️ ended %d stalled matches", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	if queue != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() {
				n, err := queue.ExpireTickets(context.Background())
				if err != nil {
					log.Printf("[Scheduler] ticket expiry error: %v", err)
					return
				}
				if n > 0 {
					log.Printf("[Scheduler] 🧹 expired %d queue tickets", n)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
