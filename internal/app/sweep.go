package app

import (
	"context"
	"log"
	"time"
)

// Run sweeps expired games every SweepInterval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.opts.Clock()); n > 0 {
				log.Printf("swept %d expired games", n)
			}
		}
	}
}

// Sweep ends and removes every game older than MaxAge, regardless of
// activity. It returns the number of games removed.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, room := range r.sessions.List() {
		room.mu.Lock()
		if !room.closed && now.Sub(room.CreatedAt()) > r.opts.MaxAge {
			r.finishLocked(room)
			r.closeLocked(room)
			log.Printf("game %s expired", room.GameID())
			removed++
		}
		room.mu.Unlock()
	}
	return removed
}
