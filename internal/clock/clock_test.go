package clock

import (
	"testing"
	"time"
)

func TestNewReturnsRealTime(t *testing.T) {
	c := New()
	before := time.Now()
	got := c.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Fatalf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMockAdvancesDeterministically(t *testing.T) {
	m := NewMock()
	start := m.Now()

	m.Add(5 * time.Minute)

	got := m.Now()
	want := start.Add(5 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("Now() after Add = %v, want %v", got, want)
	}
}

func TestMockFiresAfterOnAdvance(t *testing.T) {
	m := NewMock()
	fired := make(chan time.Time, 1)
	go func() {
		fired <- <-m.After(10 * time.Second)
	}()

	m.Add(10 * time.Second)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mock clock to fire After channel")
	}
}
