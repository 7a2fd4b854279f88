/* workerpool runs a limited number of error returning goroutines concurrently.
 *
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */
package workerpool

import (
	"fmt"
	"sync"
)

// MultiErr contains multiple errors, in the order their jobs were submitted.
type MultiErr []error

// Error returns a string representation of the multi error.
func (m MultiErr) Error() string {
	return fmt.Sprint([]error(m))
}

// Unwrap makes errors.Is and errors.As look at every contained error.
func (m MultiErr) Unwrap() []error {
	return m
}

// WorkerPool runs at most a fixed number of jobs at a time.
type WorkerPool struct {
	tickets chan struct{}
	wg      sync.WaitGroup
	lock    sync.Mutex
	errors  map[int]error
	jobs    int
}

// New returns a worker pool running at most concurrency jobs at a time. A
// concurrency of zero or less means no limit.
func New(concurrency int) *WorkerPool {
	w := &WorkerPool{
		errors: map[int]error{},
	}
	if concurrency > 0 {
		w.tickets = make(chan struct{}, concurrency)
	}
	return w
}

// Go runs f once a slot is free. Go blocks while the pool is full.
func (w *WorkerPool) Go(f func() error) {
	w.lock.Lock()
	job := w.jobs
	w.jobs++
	w.lock.Unlock()
	if w.tickets != nil {
		w.tickets <- struct{}{}
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := f()
		if w.tickets != nil {
			<-w.tickets
		}
		if err != nil {
			w.lock.Lock()
			w.errors[job] = err
			w.lock.Unlock()
		}
	}()
}

// Wait waits for all submitted jobs to finish and returns their errors.
func (w *WorkerPool) Wait() error {
	w.wg.Wait()
	w.lock.Lock()
	defer w.lock.Unlock()
	me := MultiErr{}
	for job := 0; job < w.jobs; job++ {
		if err, found := w.errors[job]; found {
			me = append(me, err)
		}
	}
	if len(me) == 0 {
		return nil
	}
	return me
}
