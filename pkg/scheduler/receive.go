// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// edited from https://github.com/googleapis/google-cloud-go

// Package scheduler runs receive callbacks and bundles publishes.
package scheduler

import (
	"errors"
	"sync"
)

// ErrDraining is returned by Add after Shutdown or FlushAndStop.
var ErrDraining = errors.New("scheduler: draining")

// ReceiveScheduler runs delivery work for the executor.
//
// Work added under the empty key runs concurrently. Work added under any other
// key runs sequentially in the order it was added, which is how a mutually
// exclusive callback group is honoured.
type ReceiveScheduler struct {
	// workers is a set of work desks: a worker is "added" until all desks are
	// full. A worker on the unordered key handles one item; a worker on an
	// ordered key drains that key's queue, deletes it, then leaves its desk.
	workers chan struct{}
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu sync.Mutex
	m  map[string][]func()
}

// NewReceiveScheduler creates a new ReceiveScheduler.
//
// The workers arg is the number of concurrent calls to handle. If the workers
// arg is 0, then a healthy default of 10 workers is used. If less than 0, this
// will be set to an large number.
func NewReceiveScheduler(workers int) *ReceiveScheduler {
	if workers == 0 {
		workers = 10
	} else if workers < 0 {
		workers = 1e9
	}

	return &ReceiveScheduler{
		workers: make(chan struct{}, workers),
		done:    make(chan struct{}),
		m:       make(map[string][]func()),
	}
}

// Add schedules work under key. Add blocks while every worker is busy, which
// pushes back on the driver goroutine delivering messages.
func (s *ReceiveScheduler) Add(key string, work func()) error {
	select {
	case <-s.done:
		return ErrDraining
	default:
	}

	s.wg.Add(1)
	if key == "" {
		s.workers <- struct{}{}
		go func() {
			defer s.wg.Done()
			defer func() { <-s.workers }()
			work()
		}()
		return nil
	}

	// Queue before spawning so the next Add on this key cannot overtake us.
	s.mu.Lock()
	_, ok := s.m[key]
	s.m[key] = append(s.m[key], work)
	s.mu.Unlock()
	if ok {
		// Someone is already working on this key.
		return nil
	}

	s.workers <- struct{}{}
	go func() {
		defer func() { <-s.workers }()

		for {
			s.mu.Lock()
			if len(s.m[key]) == 0 {
				delete(s.m, key)
				s.mu.Unlock()
				return
			}
			next := s.m[key][0]
			s.m[key] = s.m[key][1:]
			s.mu.Unlock()

			next()
			s.wg.Done()
		}
	}()

	return nil
}

// Pending reports how many items wait on an ordered key.
func (s *ReceiveScheduler) Pending(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m[key])
}

// Shutdown stops accepting new work. It does not wait for running work.
func (s *ReceiveScheduler) Shutdown() {
	s.once.Do(func() { close(s.done) })
}

// Wait blocks until all accepted work has run.
func (s *ReceiveScheduler) Wait() {
	s.wg.Wait()
}
