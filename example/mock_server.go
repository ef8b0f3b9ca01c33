package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockState tracks the behaviour and next change time of a single path.
type mockState struct {
	modeIdx      int
	nextChangeAt time.Time
}

// mock behaviours: healthy, slow enough to breach a 300ms threshold, failing
var modes = []string{"healthy", "slow", "failing"}

// StartMockHealthServer runs a mock service whose paths cycle through
// healthy, slow and failing every 20-60 seconds.
// Call this in a goroutine before starting the supervisor.
func StartMockHealthServer(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{
				nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second),
			}
			states[key] = state
		}

		if time.Now().After(state.nextChangeAt) {
			old := modes[state.modeIdx]
			state.modeIdx = (state.modeIdx + 1) % len(modes)
			state.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("mode change", "path", key, "from", old, "to", modes[state.modeIdx])
		}
		mode := modes[state.modeIdx]
		mu.Unlock()

		switch mode {
		case "slow":
			time.Sleep(time.Duration(400+rand.Intn(200)) * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		case "failing":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
