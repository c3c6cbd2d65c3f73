// Package replay provides push-based observables and a per-key replay-latest cache
// that shares one upstream subscription between every subscriber of a key.
package replay

import (
	"context"
	"sync"
)

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f once it is not nil.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Observable delivers a sequence of values to next until unsubscribed, or a terminal
// error to fail. Live observables never complete.
type Observable[T any] interface {
	Subscribe(next func(T), fail func(error)) Subscription
}

// ObservableFunc adapts a subscribe function to Observable.
type ObservableFunc[T any] func(next func(T), fail func(error)) Subscription

// Subscribe implements Observable.
func (f ObservableFunc[T]) Subscribe(next func(T), fail func(error)) Subscription {
	return f(next, fail)
}

// Map transforms every value of src.
func Map[T, R any](src Observable[T], fn func(T) R) Observable[R] {
	return ObservableFunc[R](func(next func(R), fail func(error)) Subscription {
		return src.Subscribe(func(v T) { next(fn(v)) }, fail)
	})
}

// Just emits values synchronously on every subscription.
func Just[T any](values ...T) Observable[T] {
	return ObservableFunc[T](func(next func(T), fail func(error)) Subscription {
		for _, v := range values {
			next(v)
		}
		return SubscriptionFunc(nil)
	})
}

// Fail fails every subscription with err.
func Fail[T any](err error) Observable[T] {
	return ObservableFunc[T](func(next func(T), fail func(error)) Subscription {
		if fail != nil {
			fail(err)
		}
		return SubscriptionFunc(nil)
	})
}

// First subscribes to src and returns the first value or error, then unsubscribes.
func First[T any](ctx context.Context, src Observable[T]) (T, error) {
	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	var once sync.Once

	sub := src.Subscribe(
		func(v T) { once.Do(func() { ch <- result{value: v} }) },
		func(err error) { once.Do(func() { ch <- result{err: err} }) },
	)
	if sub != nil {
		defer sub.Unsubscribe()
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
