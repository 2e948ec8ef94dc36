// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop-side concurrency primitives: goroutine identity for affinity
// checks, the cross-goroutine task queue and the timer service.
package concurrency
