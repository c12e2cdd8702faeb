package retry

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	s := New(Config{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 15 * time.Second, MaxAttempts: 3})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{-1, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 15 * time.Second}, // clamped at MaxDelay
	}
	for _, c := range cases {
		if got := s.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestDelayWithJitterBounded(t *testing.T) {
	s := New(ProfileDefault)
	for attempt := 1; attempt <= 5; attempt++ {
		base := s.Delay(attempt)
		for i := 0; i < 50; i++ {
			d := s.DelayWithJitter(attempt, 0.1)
			if d < 0 {
				t.Fatalf("jittered delay went negative: %v", d)
			}
			lo := float64(base) * 0.9
			hi := float64(base) * 1.1
			if float64(d) < lo-1 || float64(d) > hi+1 {
				t.Fatalf("jittered delay %v outside [%v,%v] for base %v", d, lo, hi, base)
			}
		}
	}
}

func TestShouldRetry(t *testing.T) {
	s := New(Config{MaxAttempts: 3})
	if !s.ShouldRetry(0) || !s.ShouldRetry(2) {
		t.Fatal("expected attempts below budget to be retryable")
	}
	if s.ShouldRetry(3) || s.ShouldRetry(4) {
		t.Fatal("expected attempts at or above budget to be exhausted")
	}
}

func TestMaxTotalWait(t *testing.T) {
	s := New(Config{InitialDelay: time.Second, Multiplier: 2.0, MaxDelay: 15 * time.Second, MaxAttempts: 3})
	// sum of Delay(1) + Delay(2) = 1s + 2s
	want := 3 * time.Second
	if got := s.MaxTotalWait(); got != want {
		t.Fatalf("MaxTotalWait() = %v, want %v", got, want)
	}
}

func TestBackoffBoundAllProfiles(t *testing.T) {
	profiles := []Config{ProfileDefault, ProfileConservative, ProfileAggressive, ProfileFast}
	for _, cfg := range profiles {
		s := New(cfg)
		for attempt := 1; attempt <= cfg.MaxAttempts+2; attempt++ {
			if d := s.Delay(attempt); d > cfg.MaxDelay {
				t.Fatalf("profile %+v: Delay(%d) = %v exceeds MaxDelay %v", cfg, attempt, d, cfg.MaxDelay)
			}
		}
	}
}
