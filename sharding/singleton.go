// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package sharding

import (
	"context"
	"sync"
	"time"

	"github.com/tochemey/goshard/log"
	"github.com/tochemey/goshard/membership"
	"github.com/tochemey/goshard/persistence"
)

// singletonManager keeps exactly one coordinator per entity type alive in
// the cluster, hosted next to the oldest member matching the type's role.
// Every engine runs one; only the engine on the oldest member actually
// hosts. A coordinator that crashes (journal failure) is restarted after
// a backoff as long as this member stays oldest.
type singletonManager struct {
	typeName  string
	address   string
	config    *Config
	store     persistence.JournalStore
	directory *Directory
	logger    log.Logger

	mu          sync.Mutex
	members     map[string]membership.Member
	coordinator *coordinator
	stopped     bool
}

func newSingletonManager(typeName, address string, store persistence.JournalStore, directory *Directory, config *Config) *singletonManager {
	manager := &singletonManager{
		typeName:  typeName,
		address:   address,
		config:    config,
		store:     store,
		directory: directory,
		logger:    config.logger,
		members:   map[string]membership.Member{},
	}
	return manager
}

// onMembershipChange re-decides whether this member should host the
// coordinator.
func (x *singletonManager) onMembershipChange(event membership.Event) {
	if !event.Member.HasRole(x.config.role) {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.stopped {
		return
	}
	switch event.Type {
	case membership.MemberUp:
		x.members[event.Member.Address] = event.Member
	case membership.MemberRemoved:
		delete(x.members, event.Member.Address)
	}
	x.reconcile()
}

// reconcile is called with the lock held.
func (x *singletonManager) reconcile() {
	oldest, ok := x.oldest()
	shouldHost := ok && oldest.Address == x.address

	if shouldHost && x.coordinator == nil {
		x.startCoordinator()
		return
	}
	if !shouldHost && x.coordinator != nil {
		x.handOverCoordinator()
	}
}

func (x *singletonManager) oldest() (membership.Member, bool) {
	var oldest membership.Member
	found := false
	for _, member := range x.members {
		if !found || member.OlderThan(oldest) {
			oldest = member
			found = true
		}
	}
	return oldest, found
}

// startCoordinator is called with the lock held.
func (x *singletonManager) startCoordinator() {
	coordinator := newCoordinator(x.typeName, x.store, x.config)
	coordinator.onStopped = func() {
		x.onCoordinatorStopped(coordinator)
	}
	if err := coordinator.start(context.Background()); err != nil {
		x.logger.Errorf("singleton %s on %s: starting coordinator: %v", x.typeName, x.address, err)
		x.scheduleRetry()
		return
	}
	x.coordinator = coordinator
	x.directory.publish(x.typeName, x.address, coordinator.ref())
}

// handOverCoordinator is called with the lock held. The actual stop runs
// off the lock: stopping waits for the coordinator's mailbox to drain and
// its stop callback takes the lock again.
func (x *singletonManager) handOverCoordinator() {
	coordinator := x.coordinator
	x.coordinator = nil
	x.directory.unpublish(x.typeName, x.address, coordinator.ref())
	x.logger.Infof("singleton %s on %s: handing coordinator over", x.typeName, x.address)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		coordinator.stop(ctx)
	}()
}

// onCoordinatorStopped fires from the coordinator's own teardown. Seeing
// the stopped coordinator still installed means it crashed rather than
// being handed over; retry while this member remains oldest.
func (x *singletonManager) onCoordinatorStopped(stopped *coordinator) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.coordinator != stopped {
		return
	}
	x.coordinator = nil
	x.directory.unpublish(x.typeName, x.address, stopped.ref())
	if !x.stopped {
		x.logger.Warnf("singleton %s on %s: coordinator stopped unexpectedly, retrying", x.typeName, x.address)
		x.scheduleRetry()
	}
}

// scheduleRetry is called with the lock held.
func (x *singletonManager) scheduleRetry() {
	time.AfterFunc(x.config.retryInterval, func() {
		x.mu.Lock()
		defer x.mu.Unlock()
		if !x.stopped && x.coordinator == nil {
			x.reconcile()
		}
	})
}

// shutdown stops hosting for good.
func (x *singletonManager) shutdown(ctx context.Context) {
	x.mu.Lock()
	x.stopped = true
	coordinator := x.coordinator
	x.coordinator = nil
	x.mu.Unlock()

	if coordinator != nil {
		x.directory.unpublish(x.typeName, x.address, coordinator.ref())
		coordinator.stop(ctx)
	}
}
