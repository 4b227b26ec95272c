// Package batch contains the batch execution engine: the orchestrator that
// runs a flow once per input line, under a strict concurrency ceiling, with
// cooperative cancellation and a post-pass aggregation step over successful
// lines only.
//
// # Structure
//
//   - engine.go: run lifecycle and result assembly. Owns the start/end
//     timestamps, the failure policy, output persistence, and the guarantee
//     that the executor is released exactly once on every exit path.
//   - scheduler.go: the line scheduler. A fixed pool of workers consumes an
//     index-ordered job channel, so admission into execution is gated
//     strictly: at no instant do more than the configured number of line
//     executions exist.
//   - aggregation.go: the aggregation coordinator. Reshapes per-line data
//     into index-aligned columns restricted to completed lines and invokes
//     the executor's aggregation entry point.
//
// # Cancellation
//
// A run is supervised by a context derived from the caller's. Cancel() closes
// it; the scheduler selects on completion events and ctx.Done(), so there is
// no polling interval and no busy wait. Once the context closes, no new line
// is admitted, in-flight executors receive the cancellation through their
// context, and the engine immediately assembles a Canceled BatchResult from
// the results recorded so far. Results arriving afterwards are discarded; the
// results channel is buffered to the batch size so an abandoned worker can
// never block on it.
package batch
