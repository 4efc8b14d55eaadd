package lockmgr

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newManager() *Manager {
	return New(0, zerolog.Nop())
}

func TestSharedLocksAreCompatible(t *testing.T) {
	m := newManager()
	defer m.Stop()

	res, err := m.Acquire(context.Background(), "t1", "doc:a", Shared)
	if err != nil || res != Granted {
		t.Fatalf("t1 acquire: res=%v err=%v", res, err)
	}
	res, err = m.Acquire(context.Background(), "t2", "doc:a", Shared)
	if err != nil || res != Granted {
		t.Fatalf("t2 acquire: res=%v err=%v", res, err)
	}
}

func TestExclusiveExcludesShared(t *testing.T) {
	m := newManager()
	defer m.Stop()

	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Exclusive); res != Granted {
		t.Fatalf("t1 should acquire exclusive immediately")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := m.Acquire(ctx, "t2", "doc:a", Shared)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if res != TimedOut {
		t.Fatalf("expected TimedOut, got %v", res)
	}
}

func TestReentrantAcquireIsNoop(t *testing.T) {
	m := newManager()
	defer m.Stop()

	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Shared); res != Granted {
		t.Fatalf("first acquire should grant")
	}
	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Shared); res != Granted {
		t.Fatalf("reentrant acquire should grant")
	}
}

func TestReleaseWakesWaitingExclusive(t *testing.T) {
	m := newManager()
	defer m.Stop()

	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Shared); res != Granted {
		t.Fatalf("t1 should acquire shared")
	}

	done := make(chan Result, 1)
	go func() {
		res, _ := m.Acquire(context.Background(), "t2", "doc:a", Exclusive)
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	m.Release("t1", "doc:a")

	select {
	case res := <-done:
		if res != Granted {
			t.Fatalf("expected t2 to be granted, got %v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("t2 never woke up")
	}
}

func TestUpgradeFromSoleSharedHolderIsImmediate(t *testing.T) {
	m := newManager()
	defer m.Stop()

	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Shared); res != Granted {
		t.Fatalf("t1 should acquire shared")
	}
	res, err := m.Acquire(context.Background(), "t1", "doc:a", Exclusive)
	if err != nil || res != Granted {
		t.Fatalf("upgrade should be granted immediately: res=%v err=%v", res, err)
	}
}

func TestDeadlockDetectorVictimizesOneTransaction(t *testing.T) {
	m := New(10*time.Millisecond, zerolog.Nop())
	defer m.Stop()

	if res, _ := m.Acquire(context.Background(), "t1", "doc:a", Exclusive); res != Granted {
		t.Fatalf("t1 should acquire doc:a")
	}
	if res, _ := m.Acquire(context.Background(), "t2", "doc:b", Exclusive); res != Granted {
		t.Fatalf("t2 should acquire doc:b")
	}

	res1 := make(chan Result, 1)
	res2 := make(chan Result, 1)
	go func() {
		r, _ := m.Acquire(context.Background(), "t1", "doc:b", Exclusive)
		res1 <- r
	}()
	go func() {
		r, _ := m.Acquire(context.Background(), "t2", "doc:a", Exclusive)
		res2 <- r
	}()

	select {
	case r := <-res1:
		if r != DeadlockVictim {
			t.Fatalf("expected t1 to be the victim, got %v", r)
		}
	case r := <-res2:
		if r != DeadlockVictim {
			t.Fatalf("expected t2 to be the victim, got %v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock was never detected")
	}
}

func TestReleaseAllDropsEveryResource(t *testing.T) {
	m := newManager()
	defer m.Stop()

	m.Acquire(context.Background(), "t1", "doc:a", Exclusive)
	m.Acquire(context.Background(), "t1", "doc:b", Shared)

	m.ReleaseAll("t1")

	res, _ := m.Acquire(context.Background(), "t2", "doc:a", Exclusive)
	if res != Granted {
		t.Fatalf("doc:a should be free after ReleaseAll, got %v", res)
	}
	res, _ = m.Acquire(context.Background(), "t2", "doc:b", Exclusive)
	if res != Granted {
		t.Fatalf("doc:b should be free after ReleaseAll, got %v", res)
	}
}
