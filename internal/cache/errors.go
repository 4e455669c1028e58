package cache

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable indicates the ephemeral store could not be reached. The
// engine does not retry; retry policy belongs to the caller or the job system.
var ErrStoreUnavailable = errors.New("store unavailable")

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
