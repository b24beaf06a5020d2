package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForAPIReady(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		want      bool
		wantCalls int
	}{
		{"ready immediately", 0, 3, true, 1},
		{"ready after failures", 2, 3, true, 3},
		{"never ready", 5, 3, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			ping := func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errors.New("connection refused")
				}
				return nil
			}

			if got := WaitForAPIReady(context.Background(), ping, tt.attempts, time.Millisecond); got != tt.want {
				t.Errorf("WaitForAPIReady() = %v, want %v", got, tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("Expected %d pings, got %d", tt.wantCalls, calls)
			}
		})
	}
}

func TestWaitForAPIReadyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	ping := func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	}

	if WaitForAPIReady(ctx, ping, 10, time.Hour) {
		t.Error("Expected not ready after cancel")
	}
	if calls != 1 {
		t.Errorf("Expected a single ping, got %d", calls)
	}
}
