package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// durationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration among the given values, or zero
// if the slice is empty.
func MaxDuration(durations []time.Duration) time.Duration {
	var max time.Duration
	if len(durations) > 0 {
		max = durations[0]
	}
	for _, d := range durations {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max) sampled from rng,
// or 0 when max is not positive.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before the given retry attempt
// (1-indexed), applying the backoff parameters and adding up to `jitter`
// of random slack sampled from rng.
//
// delay = min(initial * multiplier^(attempt-1), maxDuration) + rand[0, jitter)
func ExponentialBackoffDelay(
	attempt int,
	jitter time.Duration,
	rng rand.Rand,
	param BackoffParam,
) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	exponent := float64(attempt - 1)
	delay := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), exponent)
	if max := float64(param.MaxDuration()); param.MaxDuration() > 0 && delay > max {
		delay = max
	}

	result := time.Duration(delay)
	if jitter > 0 {
		result += time.Duration(rng.Int63n(int64(jitter)))
	}
	return result
}

// Sleeper abstracts time.Sleep so callers can inject a fake clock in tests.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps using the real wall clock.
type RealSleeper struct{}

func NewRealSleeper() RealSleeper {
	return RealSleeper{}
}

func (RealSleeper) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
