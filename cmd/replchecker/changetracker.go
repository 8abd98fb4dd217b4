package main

import (
	"sync/atomic"
	"time"

	"github.com/fkfk000/replication-checker/common"
)

const (
	closed = iota
	newWaiter
	cancelWaiter
	update
)

type trackerUpdate struct {
	updateType int
	key        int32
	change     common.Sequence
	waiter     changeWaiter
}

type changeWaiter struct {
	change common.Sequence
	rc     chan common.Sequence
}

/*
A changeTracker allows the event log to announce that a change was stored,
and API clients to wait for one. The overall effect is like a condition
variable, in that waiters are notified when something changes. This work is
done using a goroutine.
*/
type changeTracker struct {
	updateChan chan trackerUpdate
	lastKey    int32
	waiters    map[int32]changeWaiter
	lastChange common.Sequence
}

/*
createTracker creates a new change tracker with "lastChange" set to zero.
*/
func createTracker() *changeTracker {
	tracker := &changeTracker{
		updateChan: make(chan trackerUpdate, 100),
	}
	go tracker.run()
	return tracker
}

/*
close stops the change tracker from delivering notifications.
*/
func (t *changeTracker) close() {
	t.updateChan <- trackerUpdate{updateType: closed}
}

/*
update indicates that the current sequence has changed. Wake up any waiting
waiters and tell them about it.
*/
func (t *changeTracker) update(change common.Sequence) {
	t.updateChan <- trackerUpdate{
		updateType: update,
		change:     change,
	}
}

/*
wait blocks the calling goroutine until the change tracker has reached a
value at least as high as "curChange." Return the current value when that
happens.
*/
func (t *changeTracker) wait(curChange common.Sequence) common.Sequence {
	_, resultChan := t.doWait(curChange)
	return <-resultChan
}

/*
timedWait blocks the current goroutine until either a new value at least as
high as "curChange" has been reached, or "maxWait" has been exceeded. It
returns the zero sequence on a timeout.
*/
func (t *changeTracker) timedWait(
	curChange common.Sequence, maxWait time.Duration) common.Sequence {
	key, resultChan := t.doWait(curChange)
	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case result := <-resultChan:
		return result
	case <-timer.C:
		t.updateChan <- trackerUpdate{
			updateType: cancelWaiter,
			key:        key,
		}
		return common.Sequence{}
	}
}

func (t *changeTracker) doWait(curChange common.Sequence) (int32, chan common.Sequence) {
	key := atomic.AddInt32(&t.lastKey, 1)
	resultChan := make(chan common.Sequence, 1)
	t.updateChan <- trackerUpdate{
		updateType: newWaiter,
		key:        key,
		waiter: changeWaiter{
			change: curChange,
			rc:     resultChan,
		},
	}
	return key, resultChan
}

/*
 * This is the goroutine. It receives updates for new waiters, and updates
 * for new sequences, and distributes them appropriately.
 */
func (t *changeTracker) run() {
	t.waiters = make(map[int32]changeWaiter)

	running := true
	for running {
		up := <-t.updateChan
		switch up.updateType {
		case closed:
			running = false
		case update:
			t.handleUpdate(up)
		case cancelWaiter:
			delete(t.waiters, up.key)
		case newWaiter:
			t.handleWaiter(up)
		}
	}

	// Close out all waiting waiters
	for _, w := range t.waiters {
		w.rc <- t.lastChange
	}
}

func (t *changeTracker) handleUpdate(up trackerUpdate) {
	if up.change.Compare(t.lastChange) > 0 {
		t.lastChange = up.change
	}
	for k, w := range t.waiters {
		if t.lastChange.Compare(w.change) >= 0 {
			w.rc <- t.lastChange
			delete(t.waiters, k)
		}
	}
}

func (t *changeTracker) handleWaiter(u trackerUpdate) {
	if t.lastChange.Compare(u.waiter.change) >= 0 {
		u.waiter.rc <- t.lastChange
	} else {
		t.waiters[u.key] = u.waiter
	}
}
