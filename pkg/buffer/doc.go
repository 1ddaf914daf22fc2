// Package buffer provides a thread-safe ring buffer for streaming data.
//
// RingBuffer is a fixed-size buffer that overwrites the oldest data when
// full, maintaining a sliding window of the most recent elements. It
// implements io.Reader and io.Writer for byte element types and supports
// concurrent access from multiple goroutines, with graceful shutdown via
// CloseWrite (reads continue until drained) or CloseWithError.
package buffer
