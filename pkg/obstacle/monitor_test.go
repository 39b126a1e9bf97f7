package obstacle

import (
	"context"
	"testing"
	"time"

	"github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/state"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name         string
		front, back  float64
		wantForward  bool
		wantBackward bool
	}{
		{"both clear", 100, 100, false, false},
		{"front blocked", 49.9, 100, true, false},
		{"back blocked", 100, 10, false, true},
		{"both blocked", 5, 5, true, true},
		{"exactly at threshold is clear", 50, 50, false, false},
		{"max range is clear", 400, 400, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := Derive(tt.front, tt.back, 50)
			if flags.ForwardBlocked != tt.wantForward {
				t.Errorf("ForwardBlocked = %t, want %t", flags.ForwardBlocked, tt.wantForward)
			}
			if flags.BackwardBlocked != tt.wantBackward {
				t.Errorf("BackwardBlocked = %t, want %t", flags.BackwardBlocked, tt.wantBackward)
			}
		})
	}
}

func TestMonitorRunUpdatesFlags(t *testing.T) {
	store := state.NewStore()
	store.SetDistance(state.SensorFront, 20)

	m := NewMonitor(store, 50, 5*time.Millisecond, log.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !store.Blocked().ForwardBlocked {
		select {
		case <-deadline:
			t.Fatal("Monitor never set the forward blocked flag")
		case <-time.After(2 * time.Millisecond):
		}
	}

	// Clearing the distance must clear the flag on a later tick
	store.SetDistance(state.SensorFront, 200)
	deadline = time.After(2 * time.Second)
	for store.Blocked().ForwardBlocked {
		select {
		case <-deadline:
			t.Fatal("Monitor never cleared the forward blocked flag")
		case <-time.After(2 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop after cancel")
	}
}
