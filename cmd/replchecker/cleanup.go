package main

import (
	"context"
	"time"

	"github.com/fkfk000/replication-checker/storage"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

type cleaner struct {
	db     *storage.SQL
	maxAge time.Duration
	clock  clockwork.Clock
}

func newCleaner(db *storage.SQL, maxAge time.Duration, clock clockwork.Clock) *cleaner {
	return &cleaner{
		db:     db,
		maxAge: maxAge,
		clock:  clock,
	}
}

/*
run purges old changes until the context is done.
*/
func (c *cleaner) run(ctx context.Context) error {
	tick := c.clock.NewTicker(cleanupDelay(c.maxAge))
	defer tick.Stop()

	for {
		select {
		case <-tick.Chan():
			c.performCleanup()
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *cleaner) performCleanup() uint64 {
	cleanupTime := c.clock.Now().Add(-c.maxAge)
	log.Debugf("Cleaning up data records since before %v", cleanupTime)

	cleanupCount, err := c.db.Purge(cleanupTime)
	if err != nil {
		log.Errorf("Error after cleaning up %d records: %s", cleanupCount, err)
	} else if cleanupCount > 0 {
		log.Infof("Purged %d old records from the database", cleanupCount)
	}
	return cleanupCount
}

/*
cleanupDelay selects how often to run the cleanup task based
on the duration.
*/
func cleanupDelay(maxAge time.Duration) time.Duration {
	if maxAge <= time.Minute {
		return time.Second
	}
	if maxAge < 5*time.Minute {
		return 5 * time.Second
	}
	if maxAge < time.Hour {
		return 5 * time.Minute
	}
	return time.Hour
}
