// Package parallel runs independent blocking calls concurrently and joins them.
package parallel

import (
	"github.com/sourcegraph/conc"
)

// Map calls fn once per argument, each on its own goroutine, and waits for all of them.
// Results keep the order of args. If any call fails, the error of the earliest failing
// argument is returned once every call has finished, and the results are discarded.
// A panicking call is re-panicked on the caller's goroutine after the others finish.
func Map[A, R any](args []A, fn func(A) (R, error)) ([]R, error) {
	results := make([]R, len(args))
	errs := make([]error, len(args))

	var wg conc.WaitGroup
	for i, arg := range args {
		wg.Go(func() {
			results[i], errs[i] = fn(arg)
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Each is Map for calls without a result
func Each[A any](args []A, fn func(A) error) error {
	_, err := Map(args, func(arg A) (struct{}, error) {
		return struct{}{}, fn(arg)
	})
	return err
}
