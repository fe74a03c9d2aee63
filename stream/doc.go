// Package stream moves incremental data across the loop boundary.
//
// A Reader pulls one item at a time from a native source, a response body
// or a server-sent event stream, and delivers it as a bridge.Task. Nothing
// is read ahead: the next item is pulled only when the caller asks for it,
// and a second Next while one is pending fails with READ_IN_PROGRESS. End of
// stream and failure are terminal. Once either has been delivered the
// Reader produces nothing more and its release hook has run.
//
// Body does the reverse for request bodies: it turns a caller-supplied
// iterator into an io.ReadCloser that the transport drains lazily.
package stream
