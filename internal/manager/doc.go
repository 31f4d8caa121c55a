// Package manager owns the single loaded diffusion pipeline. It is split by
// concern:
//
//   - manager.go: Manager type, state, non-blocking queries and Status.
//   - config.go: Config and defaults; New applies them.
//   - ensure.go: EnsureLoaded and profile application.
//   - borrow.go: WithHandle/Borrow, the only way to reach the pipeline.
//   - unload.go: Unload with a bounded drain of in-flight borrows.
//   - errors.go: error values and IsX helpers.
//   - events.go, eventpub_memory.go: lifecycle event publishing.
//   - metrics.go: Prometheus collectors.
//
// Only one load or unload runs at a time. A second caller gets
// ErrAlreadyLoading immediately instead of waiting.
package manager
