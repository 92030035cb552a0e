package concurrent

import (
	"github.com/vireo-net/replicator/pkg/sequence"
	"golang.org/x/sync/errgroup"
)

// Concurrent runs the action function for each element of the iterator in a separate goroutine.
// It waits for all goroutines to finish. If action returns an error, it returns the first error encountered.
func Concurrent[T any](i *sequence.Iterator[T], action func(T) error) error {
	errGroup := errgroup.Group{}
	next, stop := i.Pull()
	defer stop()

	for {
		value, valid := next()
		if !valid {
			break
		}

		errGroup.Go(func() error {
			return action(value)
		})
	}

	return errGroup.Wait()
}
