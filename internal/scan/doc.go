// Package scan holds the domain model for the drawing scan pipeline: session
// and work item types, the wire envelope for queued items, and the interfaces
// implemented by storage, queue, source, processing and reporting backends.
//
// The package has no dependencies on any backend so every subsystem can be
// exercised against in-memory implementations in tests.
package scan
