// Package executor implements the queued executor: a dispatcher
// goroutine bounded by a concurrency semaphore, and a worker per
// dispatched flow run. See dispatcher.go for the dispatch loop and
// worker.go for the per-run state machine.
package executor
