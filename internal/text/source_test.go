package text

import (
	"testing"
	"time"
)

func TestSliceSource_YieldsInOrder(t *testing.T) {
	src := NewSliceSource([]string{"one", "two", "three"})

	var got []string
	for f := range src.Fragments() {
		got = append(got, f)
	}

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d fragments, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected fragment %d to be %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSliceSource_Empty(t *testing.T) {
	src := NewSliceSource(nil)

	if _, ok := <-src.Fragments(); ok {
		t.Error("Expected channel to be closed immediately for empty source")
	}
}

func TestSliceSource_SkipsEmptyFragments(t *testing.T) {
	src := NewSliceSource([]string{"", "one", ""})

	var got []string
	for f := range src.Fragments() {
		got = append(got, f)
	}
	if len(got) != 1 || got[0] != "one" {
		t.Errorf("Expected [one], got %v", got)
	}
}

func TestStreamSource_PushAndFinish(t *testing.T) {
	src := NewStreamSource(4)

	if err := src.Push("hello"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	src.Finish()

	f, ok := <-src.Fragments()
	if !ok || f != "hello" {
		t.Errorf("Expected hello, got %q (ok=%v)", f, ok)
	}
	if _, ok := <-src.Fragments(); ok {
		t.Error("Expected channel closed after Finish")
	}
}

func TestStreamSource_StopUnblocksPush(t *testing.T) {
	src := NewStreamSource(1)

	if err := src.Push("fills the buffer"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- src.Push("blocked")
	}()

	time.Sleep(20 * time.Millisecond)
	src.Stop()

	select {
	case err := <-result:
		if err != ErrSourceStopped {
			t.Errorf("Expected ErrSourceStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Stop")
	}
}

func TestStreamSource_PushAfterStop(t *testing.T) {
	src := NewStreamSource(4)
	src.Stop()

	if err := src.Push("late"); err != ErrSourceStopped {
		t.Errorf("Expected ErrSourceStopped, got %v", err)
	}
}

func TestStreamSource_StopIdempotent(t *testing.T) {
	src := NewStreamSource(1)
	src.Stop()
	src.Stop()
}
