package future

import "github.com/pkg/errors"

// ErrCancelled is the failure a cancelled Promise completes with.
var ErrCancelled = errors.New("future: cancelled")
