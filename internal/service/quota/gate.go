package quota

import (
	"context"
	"errors"
)

// Counter reports how many user-authored messages a user has persisted.
type Counter interface {
	CountUserMessages(ctx context.Context, userID string) (int, error)
}

// Decision is the outcome of an admission check, with the figures needed
// to render "used/limit" to the user on denial.
type Decision struct {
	Allowed bool
	Used    int
	Limit   int
}

// Gate admits or rejects sends against a lifetime message ceiling.
//
// The check is read-then-decide with no reservation step: two concurrent
// sends by the same user can both be admitted right at the boundary. That
// race is accepted at this scale; the count is recomputed from the
// conversation log on every call so it never drifts.
type Gate struct {
	counter Counter
	limit   int
}

// NewGate returns a Gate over the given counter.
func NewGate(counter Counter, limit int) *Gate {
	return &Gate{counter: counter, limit: limit}
}

// Check recomputes the user's usage and decides admission. An empty user id
// is a caller error, not a denial.
func (g *Gate) Check(ctx context.Context, userID string) (Decision, error) {
	if userID == "" {
		return Decision{}, errors.New("user id is required")
	}

	used, err := g.counter.CountUserMessages(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed: used < g.limit,
		Used:    used,
		Limit:   g.limit,
	}, nil
}
