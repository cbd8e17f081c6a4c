package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// LeaseReaper periodically resets expired job leases back to pending
// so a crashed or hung worker never permanently strands a job.
type LeaseReaper struct {
	queue *PGLeaseQueueService
	cron  *cron.Cron
}

// NewLeaseReaper schedules ReapExpiredLeases on a 30s tick.
func NewLeaseReaper(queue *PGLeaseQueueService) *LeaseReaper {
	c := cron.New(cron.WithSeconds())
	r := &LeaseReaper{queue: queue, cron: c}
	c.AddFunc("*/30 * * * * *", r.tick)
	return r
}

func (r *LeaseReaper) Start() { r.cron.Start() }
func (r *LeaseReaper) Stop()  { r.cron.Stop() }

func (r *LeaseReaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := r.queue.ReapExpiredLeases(ctx)
	if err != nil {
		log.Printf("[orchestrator] lease reap failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[orchestrator] reaped %d expired lease(s)", n)
	}
}
