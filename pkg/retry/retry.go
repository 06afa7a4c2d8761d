// Package retry provides a fixed-delay retry helper for flaky device calls.
package retry

import "time"

// Do calls fn up to attempts times, sleeping delay between attempts.
// It returns nil on the first success, or the last error.
func Do(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// Value is Do for calls that produce a value.
func Value[T any](attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		if v, err = fn(); err == nil {
			return v, nil
		}
	}
	return v, err
}
