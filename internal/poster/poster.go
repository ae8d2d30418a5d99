package poster

import (
	"context"
	"errors"
)

// ErrRateLimited signals that the platform refused the post temporarily
// and a later retry may succeed.
var ErrRateLimited = errors.New("platform rate limit exceeded")

// Poster publishes a finished draft to a social platform and returns the
// platform-assigned post ID.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}
