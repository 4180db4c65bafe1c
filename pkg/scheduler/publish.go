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

package scheduler

import (
	"reflect"
	"sync"
	"time"

	"google.golang.org/api/support/bundler"
)

// PublishScheduler bundles items before handing them to a single handler.
//
// Items added to the empty key are handled in random order. Items added to
// any other key are handled sequentially.
type PublishScheduler struct {
	// Settings passed down to each bundler that gets created.
	DelayThreshold time.Duration
	// Once a bundle has this many items, handle the bundle.
	BundleCountThreshold int
	// Once the number of bytes in current bundle reaches this threshold,
	// handle the bundle. This triggers handling, but does not cap the size.
	BundleByteThreshold int
	// The maximum size of a single bundle.
	BundleByteLimit int
	// The maximum number of bytes that the bundler keeps in memory before
	// returning bundler.ErrOverflow.
	BufferedByteLimit int

	mu          sync.Mutex
	bundlers    map[string]*bundler.Bundler
	outstanding map[string]int

	keysMu sync.RWMutex
	// keysWithErrors tracks ordering keys that cannot accept new items
	// until Resume is called.
	keysWithErrors map[string]struct{}

	// workers acts as flow control for the completion of bundler work.
	workers chan struct{}
	handle  func(bundle interface{})
	done    chan struct{}
	once    sync.Once
}

// NewPublishScheduler returns a new PublishScheduler. handle receives a slice
// of the items added to one key. If the workers arg is 0, then a healthy
// default of 10 workers is used.
func NewPublishScheduler(workers int, handle func(bundle interface{})) *PublishScheduler {
	if workers == 0 {
		workers = 10
	}

	return &PublishScheduler{
		bundlers:       make(map[string]*bundler.Bundler),
		outstanding:    make(map[string]int),
		keysWithErrors: make(map[string]struct{}),
		workers:        make(chan struct{}, workers),
		handle:         handle,
		done:           make(chan struct{}),
	}
}

// Add adds an item of the given size to the scheduler at key. Add never
// blocks; buffering happens in the bundlers.
func (s *PublishScheduler) Add(key string, item interface{}, size int) error {
	select {
	case <-s.done:
		return ErrDraining
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundlers[key]
	if !ok {
		s.outstanding[key] = 0
		b = bundler.NewBundler(item, func(bundle interface{}) {
			s.workers <- struct{}{}
			s.handle(bundle)
			<-s.workers

			nlen := reflect.ValueOf(bundle).Len()
			s.mu.Lock()
			s.outstanding[key] -= nlen
			if s.outstanding[key] == 0 {
				delete(s.outstanding, key)
				delete(s.bundlers, key)
			}
			s.mu.Unlock()
		})
		b.DelayThreshold = s.DelayThreshold
		b.BundleCountThreshold = s.BundleCountThreshold
		b.BundleByteThreshold = s.BundleByteThreshold
		b.BundleByteLimit = s.BundleByteLimit
		b.BufferedByteLimit = s.BufferedByteLimit

		if b.BufferedByteLimit == 0 {
			b.BufferedByteLimit = 1e9
		}

		if key == "" {
			// There's no way to express "unlimited" in the bundler, so we use
			// some high number.
			b.HandlerLimit = 1e9
		} else {
			// HandlerLimit=1 causes the bundler to act as a sequential queue.
			b.HandlerLimit = 1
		}

		s.bundlers[key] = b
	}
	s.outstanding[key]++
	return b.Add(item, size)
}

// FlushAndStop stops accepting items and blocks until every bundler has
// handed its items to the handler.
func (s *PublishScheduler) FlushAndStop() {
	s.once.Do(func() { close(s.done) })

	s.mu.Lock()
	bundlers := make([]*bundler.Bundler, 0, len(s.bundlers))
	for _, b := range s.bundlers {
		bundlers = append(bundlers, b)
	}
	s.mu.Unlock()

	for _, b := range bundlers {
		b.Flush()
	}
}

// IsPaused checks if the bundler associated with an ordering key is paused.
func (s *PublishScheduler) IsPaused(orderingKey string) bool {
	s.keysMu.RLock()
	defer s.keysMu.RUnlock()
	_, ok := s.keysWithErrors[orderingKey]
	return ok
}

// Pause stops the ordering key from accepting new items. The empty key cannot
// be paused.
func (s *PublishScheduler) Pause(orderingKey string) {
	if orderingKey != "" {
		s.keysMu.Lock()
		defer s.keysMu.Unlock()
		s.keysWithErrors[orderingKey] = struct{}{}
	}
}

// Resume resumes accepting items with the provided ordering key.
func (s *PublishScheduler) Resume(orderingKey string) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()
	delete(s.keysWithErrors, orderingKey)
}
