// Package signals is a small in-process pub/sub used to wake sleeping
// consumers, e.g. the in-process delivery queue when a job lands.
package signals

import (
	"math/rand"
	"sync"
)

type Signal string

const NewJobInQueue Signal = "new-job-in-queue"

var mu sync.RWMutex
var sigs = map[Signal][]chan struct{}{}

// Notify pokes one random listener, Broadcast pokes all of them. Both are
// best effort, a listener with a full buffer is skipped rather than blocked
// on.
func Notify(channel Signal) {
	mu.RLock()
	defer mu.RUnlock()
	chans := sigs[channel]
	l := len(chans)
	if l > 0 {
		select {
		case chans[rand.Intn(l)] <- struct{}{}:
		default:
		}
	}
}

func Broadcast(channel Signal) {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range sigs[channel] {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

func Listen(channel Signal) (signal <-chan struct{}, cancel func()) {
	mu.Lock()
	defer mu.Unlock()
	c := make(chan struct{}, 1)

	sigs[channel] = append(sigs[channel], c)

	return c, func() {
		mu.Lock()
		defer mu.Unlock()

		var chans []chan struct{}
		for _, cc := range sigs[channel] {
			if cc == c {
				continue
			}
			chans = append(chans, cc)
		}
		sigs[channel] = chans
	}
}
