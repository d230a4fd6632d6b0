// Package unitpool runs a fixed pool of decode workers over the row-group
// units of a columnar sensor log.
//
// Each worker opens its own handle on the data source at init, so units are
// decoded with no shared mutable state between workers. Requests are
// dispatched to an idle worker or queued FIFO; each request is answered on
// its own buffered result channel. The pool guarantees fair dispatch of
// whatever it is asked to do; deduplicating unit indexes is the caller's
// responsibility.
package unitpool
