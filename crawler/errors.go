package crawler

import "errors"

// Sentinel errors for the error kinds described by the crawler's error
// handling design. Wrap one of these with fmt.Errorf("...: %w", Err...) so
// callers can recover the kind with errors.Is.
var (
	// ErrConfig signals an invalid configuration value (thread limit,
	// max-process-waiting, a nil base URL). Surfaced synchronously to the
	// caller; never mutates crawler state.
	ErrConfig = errors.New("crawler: invalid configuration")

	// ErrFetchFailed wraps a network, TLS, HTTP-status or client-pool
	// error encountered while fetching a URL.
	ErrFetchFailed = errors.New("crawler: fetch failed")

	// ErrParseFailed wraps a panic recovered from a user action while
	// processing a fetched page (fetcher.ParseJob.Err), logged by the
	// parse-completion consumer. Link extraction itself never errors; a
	// malformed href is skipped rather than failing the job.
	ErrParseFailed = errors.New("crawler: parse failed")

	// ErrInterrupted has no producer in this design: every suspension
	// point (frontier.Poll, stage.pollCompleted) uses a uniform
	// poll-with-timeout that reports only ok/not-ok, never distinguishing
	// an external interrupt from a plain timeout elapsing. Kept exported
	// for parity with the error kinds named by the crawler's error
	// handling design; see DESIGN.md's Open Questions for the rationale.
	ErrInterrupted = errors.New("crawler: interrupted")

	// ErrShutdownTimeout marks a worker pool that failed to drain within
	// its grace period during shutdown.
	ErrShutdownTimeout = errors.New("crawler: shutdown timeout")

	// ErrPoolClosed is returned by submit() once a stage has been shut
	// down; it is the only error submit() can return.
	ErrPoolClosed = errors.New("crawler: pool closed")
)
