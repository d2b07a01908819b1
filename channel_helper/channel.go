// Package channel_helper holds helpers for channels that only care about
// the latest value.
package channel_helper

// WriteToChannelAndBufferLatest sends v without blocking. When ch is full the
// oldest buffered value is dropped to make room. It reports whether v was
// delivered.
func WriteToChannelAndBufferLatest[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
	}

	select {
	case <-ch:
	default:
	}

	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
