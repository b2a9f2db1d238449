// Copyright 2026 The persona-relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package persona

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Job is one message queued for processing
type Job struct {
	Account string
	Message PendingMessage
}

// JobFunc processes a job
type JobFunc func(ctx context.Context, job Job)

// Dispatcher runs jobs on a fixed set of workers. Jobs are sharded by
// account, so jobs for one account run one at a time in submission order
type Dispatcher struct {
	run      JobFunc
	queues   []chan Job
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
	mutex    sync.RWMutex
	doneCh   chan struct{}
}

// NewDispatcher creates a dispatcher with the given number of workers and
// per-worker queue size. Non-positive values default to 1
func NewDispatcher(workers int, queueSize int, run JobFunc) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		run:    run,
		queues: make([]chan Job, workers),
		doneCh: make(chan struct{}),
	}
	for i := range d.queues {
		d.queues[i] = make(chan Job, queueSize)
	}
	return d
}

// Start starts the workers. Calling it more than once has no effect
func (d *Dispatcher) Start(ctx context.Context) {
	if d.started.Swap(true) {
		return
	}
	for _, queue := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, queue)
	}
}

// Stop stops accepting jobs, lets the workers drain their queues and waits
// for them
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		// Unblock pending submits before taking the lock
		close(d.doneCh)
		d.mutex.Lock()
		for _, queue := range d.queues {
			close(queue)
		}
		d.mutex.Unlock()
	})
	d.wg.Wait()
}

// Submit queues a job, blocking while the account's queue is full
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	select {
	case <-d.doneCh:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.queues[d.shard(job.Account)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.doneCh:
		return ErrDispatcherStopped
	}
}

func (d *Dispatcher) shard(account string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(account))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan Job) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-queue:
			if !ok {
				return
			}
			d.run(ctx, job)
		}
	}
}
