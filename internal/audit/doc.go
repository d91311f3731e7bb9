// Package audit forwards security-relevant portal events to sinks off the
// request path.
//
// The [Dispatcher] buffers events and delivers them from a single goroutine.
// It either drops events when the buffer is full or blocks the caller until
// there is room, depending on [Config.DropIfFull]. Which events are emitted is
// decided by the caller.
package audit
