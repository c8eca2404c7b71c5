package passwordpolicy

import (
	"errors"
	"fmt"

	"github.com/nbutton23/zxcvbn-go"
)

const (
	// MinScore is the lowest estimator score accepted for email/password submissions.
	MinScore = 3
	// MaxScore is the highest score an estimator can report.
	MaxScore = 4
)

// ErrWeakPassword is matched by every rejection returned from Policy.Check.
var ErrWeakPassword = errors.New("password is too weak")

// WeakPasswordError carries the score that caused a rejection.
type WeakPasswordError struct {
	Score    int
	Required int
}

// Error implements the error interface.
func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password score %d below required %d", e.Score, e.Required)
}

// Is reports ErrWeakPassword equivalence for errors.Is.
func (e *WeakPasswordError) Is(target error) bool {
	return target == ErrWeakPassword
}

// Estimator scores a candidate password from 0 (guessable) to 4 (strong).
type Estimator interface {
	Score(password string) int
}

// EstimatorFunc adapts ordinary functions to Estimator.
type EstimatorFunc func(password string) int

// Score calls f(password).
func (f EstimatorFunc) Score(password string) int {
	return f(password)
}

// Zxcvbn returns the default estimator backed by zxcvbn-go.
func Zxcvbn() Estimator {
	return EstimatorFunc(func(password string) int {
		return zxcvbn.PasswordStrength(password, nil).Score
	})
}

// Policy gates submissions on the estimator score.
type Policy struct {
	estimator Estimator
	minScore  int
}

// Option customises a Policy.
type Option func(*Policy)

// WithMinScore overrides the acceptance threshold. Values outside [0,4] are ignored.
func WithMinScore(score int) Option {
	return func(p *Policy) {
		if score >= 0 && score <= MaxScore {
			p.minScore = score
		}
	}
}

// New builds a Policy. A nil estimator falls back to zxcvbn.
func New(estimator Estimator, opts ...Option) *Policy {
	if estimator == nil {
		estimator = Zxcvbn()
	}
	p := &Policy{
		estimator: estimator,
		minScore:  MinScore,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinScore returns the acceptance threshold in effect.
func (p *Policy) MinScore() int {
	return p.minScore
}

// Score returns the estimator score clamped to [0,4].
func (p *Policy) Score(password string) int {
	score := p.estimator.Score(password)
	switch {
	case score < 0:
		return 0
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}

// Check scores the password and rejects it when the score is below the threshold.
// The score is returned in both cases.
func (p *Policy) Check(password string) (int, error) {
	score := p.Score(password)
	if score < p.minScore {
		return score, &WeakPasswordError{Score: score, Required: p.minScore}
	}
	return score, nil
}
