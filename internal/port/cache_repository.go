package port

import "context"

type IdempotencyCache interface {
	// SetIdempotency claims key as pending, returns false if it already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// CompleteIdempotency marks a pending key as used for good
	CompleteIdempotency(ctx context.Context, key string) error

	// ReleaseIdempotency frees a pending key so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
