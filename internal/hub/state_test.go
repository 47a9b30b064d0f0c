package hub

import "testing"

func TestManagedState_SetValuePublishesPreviousAndCurrent(t *testing.T) {
	s := NewManagedState(0, nil)

	var gotPrev, gotCur int
	calls := 0
	s.OnChange(func(previous, current int) {
		calls++
		gotPrev, gotCur = previous, current
	})

	s.SetValue(func(int) int { return 5 })

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if gotPrev != 0 || gotCur != 5 {
		t.Fatalf("got (%d, %d), want (0, 5)", gotPrev, gotCur)
	}
	if s.CurrentValue() != 5 {
		t.Fatalf("CurrentValue() = %d, want 5", s.CurrentValue())
	}
}

func TestManagedState_DisposeUnsubscribes(t *testing.T) {
	s := NewManagedState(0, nil)
	calls := 0
	d := s.OnChange(func(previous, current int) { calls++ })

	s.SetValue(func(int) int { return 1 })
	d.Dispose()
	s.SetValue(func(int) int { return 2 })

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 after dispose", calls)
	}
	if s.ListenerCount() != 0 {
		t.Fatalf("ListenerCount() = %d, want 0", s.ListenerCount())
	}
}

func TestManagedState_MultipleListeners(t *testing.T) {
	s := NewManagedState(SharedFileCacheState{}, nil)

	var a, b int
	s.OnChange(func(previous, current SharedFileCacheState) { a++ })
	s.OnChange(func(previous, current SharedFileCacheState) { b++ })

	s.SetValue(func(c SharedFileCacheState) SharedFileCacheState {
		c.Filling = true
		return c
	})

	if a != 1 || b != 1 {
		t.Fatalf("a=%d b=%d, want both 1", a, b)
	}
	if !s.CurrentValue().Filling {
		t.Fatal("expected Filling=true")
	}
}
