package avito

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Resolver clears soft challenges by reloading the page with jittered
// pauses. The site drops most captcha and continue-button interstitials
// after a fresh request, so a bounded reload loop resolves them without
// any solving service.
type Resolver struct {
	detector *Detector

	// MinPause and MaxPause bound the random wait before each reload.
	MinPause time.Duration
	MaxPause time.Duration
}

// NewResolver constructs a Resolver with the production pause window.
func NewResolver(d *Detector) *Resolver {
	return &Resolver{detector: d, MinPause: 2 * time.Second, MaxPause: 5 * time.Second}
}

// Resolve reloads the page up to maxAttempts times and reports whether
// it left the challenge family. False with a nil error means the
// challenge survived the whole attempt budget.
func (r *Resolver) Resolve(ctx domain.Context, s domain.Session, maxAttempts int) (bool, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.pause(ctx); err != nil {
			return false, err
		}
		if err := s.Goto(ctx, s.URL()); err != nil {
			return false, fmt.Errorf("captcha reload %d: %w", attempt, err)
		}
		state, err := r.detector.Detect(ctx, s)
		if err != nil {
			return false, fmt.Errorf("captcha recheck %d: %w", attempt, err)
		}
		if !isChallenge(state) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) pause(ctx domain.Context) error {
	lo, hi := r.MinPause, r.MaxPause
	if hi < lo {
		hi = lo
	}
	d := lo
	if span := hi - lo; span > 0 {
		d += time.Duration(rand.Int63n(int64(span))) //nolint:gosec // Pause jitter needs no crypto randomness.
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isChallenge reports whether a state still belongs to the challenge
// family the resolver is trying to leave.
func isChallenge(state domain.PageState) bool {
	switch state {
	case domain.StateCaptcha, domain.StateContinueButton, domain.StateProxyBlock429:
		return true
	}
	return false
}
