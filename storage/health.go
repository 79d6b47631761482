package storage

import (
	"context"
	"fmt"
	"time"
)

// NewCustomHealthCheckFunc returns a go-sundheit check function that
// exercises a real create+delete round trip against s, the same
// liveness probe shape the teacher repo uses for its own storage
// backends.
func NewCustomHealthCheckFunc(s Storage, now func() time.Time) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		a := AuthRequest{
			RequestID: NewID(),
			ClientID:  NewID(),
			// Short expiry so a failed delete is still cleaned up quickly
			// by the next garbage-collection sweep.
			ExpiresAt: now().Add(time.Minute),
			CreatedAt: now(),
			Status:    StatusPending,
		}

		if err := s.CreateAuthRequest(ctx, a); err != nil {
			return nil, fmt.Errorf("create auth request: %w", err)
		}
		if err := s.DeleteAuthRequest(ctx, a.RequestID); err != nil {
			return nil, fmt.Errorf("delete auth request: %w", err)
		}
		return nil, nil
	}
}
