package state

import (
	"sync"
	"testing"
)

func TestStoreInitialState(t *testing.T) {
	s := NewStore()

	if d := s.Distance(SensorFront); d != MaxDistanceCm {
		t.Errorf("Expected initial front distance %v, got %v", MaxDistanceCm, d)
	}
	if d := s.Distance(SensorBack); d != MaxDistanceCm {
		t.Errorf("Expected initial back distance %v, got %v", MaxDistanceCm, d)
	}
	flags := s.Blocked()
	if flags.ForwardBlocked || flags.BackwardBlocked {
		t.Errorf("Expected no directions blocked initially, got %+v", flags)
	}
}

func TestStoreDistanceRoundTrip(t *testing.T) {
	s := NewStore()

	s.SetDistance(SensorFront, 42.5)
	s.SetDistance(SensorBack, 123.75)

	if d := s.Distance(SensorFront); d != 42.5 {
		t.Errorf("Expected front distance 42.5, got %v", d)
	}
	if d := s.Distance(SensorBack); d != 123.75 {
		t.Errorf("Expected back distance 123.75, got %v", d)
	}
}

func TestStoreBlockedFlags(t *testing.T) {
	s := NewStore()

	s.SetBlocked(BlockedFlags{ForwardBlocked: true})
	flags := s.Blocked()
	if !flags.ForwardBlocked {
		t.Error("Expected forward blocked")
	}
	if flags.BackwardBlocked {
		t.Error("Expected backward not blocked")
	}

	s.SetBlocked(BlockedFlags{BackwardBlocked: true})
	flags = s.Blocked()
	if flags.ForwardBlocked {
		t.Error("Expected forward unblocked after second write")
	}
	if !flags.BackwardBlocked {
		t.Error("Expected backward blocked")
	}
}

func TestStoreSnapshot(t *testing.T) {
	s := NewStore()
	s.SetDistance(SensorFront, 30)
	s.SetDistance(SensorBack, 250)
	s.SetBlocked(BlockedFlags{ForwardBlocked: true})

	snap := s.Snapshot()
	if snap.FrontCm != 30 || snap.BackCm != 250 {
		t.Errorf("Unexpected snapshot distances: %+v", snap)
	}
	if !snap.ForwardBlocked || snap.BackwardBlocked {
		t.Errorf("Unexpected snapshot flags: %+v", snap)
	}
}

// One writer per cell, many readers: must not race (run with -race).
func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetDistance(SensorFront, float64(i))
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetBlocked(BlockedFlags{ForwardBlocked: i%2 == 0})
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	if d := s.Distance(SensorFront); d != 999 {
		t.Errorf("Expected final front distance 999, got %v", d)
	}
}
