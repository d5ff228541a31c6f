package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/momentics/hioload-lines/api"
)

func TestSession_OutboundOrder(t *testing.T) {
	s := New(1, -1, "test", 0)
	for i := 0; i < 5; i++ {
		if !s.Enqueue([]byte(fmt.Sprintf("r%d\n", i)), false) {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}
	for i := 0; i < 5; i++ {
		data, fin, ok := s.NextWrite()
		if !ok || fin {
			t.Fatalf("NextWrite %d: ok=%v fin=%v", i, ok, fin)
		}
		if want := fmt.Sprintf("r%d\n", i); string(data) != want {
			t.Errorf("NextWrite %d: got %q want %q", i, data, want)
		}
		if !s.Advance(len(data)) {
			t.Errorf("Advance %d: expected completion", i)
		}
	}
	if _, _, ok := s.NextWrite(); ok {
		t.Errorf("expected empty queue")
	}
}

func TestSession_PartialWrite(t *testing.T) {
	s := New(1, -1, "test", 0)
	s.Enqueue([]byte("hello\n"), false)
	s.Enqueue([]byte("next\n"), false)

	data, _, _ := s.NextWrite()
	if s.Advance(2) {
		t.Fatalf("partial advance reported completion")
	}
	data, _, _ = s.NextWrite()
	if string(data) != "llo\n" {
		t.Fatalf("expected remainder, got %q", data)
	}
	if !s.HasOutbound() || s.QueueLen() != 1 {
		t.Errorf("queue state wrong: has=%v len=%d", s.HasOutbound(), s.QueueLen())
	}
	if !s.Advance(len(data)) {
		t.Fatalf("remainder advance not complete")
	}
	data, _, _ = s.NextWrite()
	if string(data) != "next\n" {
		t.Errorf("expected next response, got %q", data)
	}
}

func TestSession_CloseAfterStopsQueue(t *testing.T) {
	s := New(1, -1, "test", 0)
	s.Enqueue([]byte("a\n"), false)
	s.Enqueue([]byte("quit\n"), true)
	if s.Enqueue([]byte("late\n"), false) {
		t.Errorf("Enqueue after close-after response must be rejected")
	}
	if !s.Closing() {
		t.Errorf("expected Closing")
	}
	s.NextWrite()
	s.Advance(2)
	data, fin, ok := s.NextWrite()
	if !ok || !fin || string(data) != "quit\n" {
		t.Errorf("expected quit ack flagged close-after, got %q fin=%v ok=%v", data, fin, ok)
	}
}

func TestSession_WithdrawAndArm(t *testing.T) {
	s := New(1, -1, "test", 0)
	prev, ok := s.Withdraw()
	if !ok || prev != api.InterestRead {
		t.Fatalf("Withdraw: prev=%v ok=%v", prev, ok)
	}
	if _, ok := s.Withdraw(); ok {
		t.Fatalf("second Withdraw must fail while owned")
	}
	if err := s.Arm(api.InterestWrite, func() error { return nil }); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if s.Interest() != api.InterestWrite {
		t.Errorf("expected write interest, got %v", s.Interest())
	}
	boom := errors.New("boom")
	if err := s.Arm(api.InterestRead, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected apply error, got %v", err)
	}
	if s.Interest() != api.InterestWrite {
		t.Errorf("failed Arm must not change interest")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	s := New(1, -1, "test", 0)
	s.Enqueue([]byte("x\n"), false)

	var released int
	var wg sync.WaitGroup
	var closedBy int32
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Close(func() { released++ }) {
				mu.Lock()
				closedBy++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if released != 1 || closedBy != 1 {
		t.Errorf("expected exactly one release, got released=%d closedBy=%d", released, closedBy)
	}
	if s.Open() || s.HasOutbound() {
		t.Errorf("closed session must be empty and not open")
	}
	if err := s.Arm(api.InterestRead, func() error { t.Error("apply after close"); return nil }); !errors.Is(err, api.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, ok := s.Withdraw(); ok {
		t.Errorf("Withdraw after close must fail")
	}
}
