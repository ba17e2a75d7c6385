// Package cli is a thin cobra command tree over an in-process
// *executor.Executor. There is no network-facing API surface in this
// repository, so every command talks directly to the Executor value the
// host process already constructed.
package cli
