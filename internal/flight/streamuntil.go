package flight

import "context"

// StreamUntil forwards values from primary until the first of: primary
// closes, events yields an item for which stop returns true, events closes,
// or ctx is done. The returned channel closes at that point and stays closed;
// a finished combination never yields again.
//
// The event stream never contributes values - it is only ever a terminator.
func StreamUntil[T any, E any](ctx context.Context, primary <-chan T, events <-chan E, stop func(E) bool) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			select {
			case v, ok := <-primary:
				if !ok {
					return
				}
				if !forwardUntil(ctx, out, v, events, stop) {
					return
				}
			case ev, ok := <-events:
				if !ok || stop(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// forwardUntil delivers one value while still honoring the terminator.
// Reports false when the combination must end.
func forwardUntil[T any, E any](ctx context.Context, out chan<- T, v T, events <-chan E, stop func(E) bool) bool {
	for {
		select {
		case out <- v:
			return true
		case ev, ok := <-events:
			if !ok || stop(ev) {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
}
