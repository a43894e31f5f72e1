package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUpToMax(t *testing.T) {
	l := New(time.Minute, 3)
	for i := 0; i < 3; i++ {
		if !l.Allow("tg") {
			t.Fatalf("call %d rejected under budget", i+1)
		}
	}
	if l.Allow("tg") {
		t.Fatal("fourth call allowed over budget")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := New(time.Minute, 1)
	if !l.Allow("tg") {
		t.Fatal("first key rejected")
	}
	if !l.Allow("hook") {
		t.Fatal("second key throttled by first key's usage")
	}
	if l.Allow("tg") {
		t.Fatal("exhausted key allowed")
	}
}

func TestWindowSlides(t *testing.T) {
	l := New(50*time.Millisecond, 2)
	l.Allow("tg")
	l.Allow("tg")
	if l.Allow("tg") {
		t.Fatal("allowed inside full window")
	}
	time.Sleep(60 * time.Millisecond)
	if !l.Allow("tg") {
		t.Fatal("still throttled after window elapsed")
	}
}

func TestRemaining(t *testing.T) {
	l := New(time.Minute, 5)
	if got := l.Remaining("tg"); got != 5 {
		t.Fatalf("fresh key remaining = %d, want 5", got)
	}
	l.Allow("tg")
	l.Allow("tg")
	if got := l.Remaining("tg"); got != 3 {
		t.Fatalf("remaining = %d, want 3", got)
	}
}
