// Package cache provides the best-effort live-answer cache. The persistent
// session store remains the single source of truth; every implementation may
// fail or lose data without affecting correctness.
package cache

import "context"

// SessionCache is the narrow cache surface keyed by session token. Answer
// values are the raw JSON-encoded response for one question.
type SessionCache interface {
	GetAnswers(ctx context.Context, token string) (map[string]string, error)
	SetAnswer(ctx context.Context, token, questionID, raw string) error
	Delete(ctx context.Context, token string) error
}

// Noop is the default pass-through implementation used when no cache backend
// is configured.
type Noop struct{}

func (Noop) GetAnswers(context.Context, string) (map[string]string, error) { return nil, nil }
func (Noop) SetAnswer(context.Context, string, string, string) error       { return nil }
func (Noop) Delete(context.Context, string) error                          { return nil }
