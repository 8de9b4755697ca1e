// package tasks implements the monthly best-of-the-month generation run.
//
// The core abstraction is [Generator], which drives one run for a given
// date: it opens (or resumes) the ledger entry for the month, snapshots the
// eligible users, fans independent per-user jobs out onto a bounded worker
// pool, and commits a ledger row for every user whose playlist was
// published.
//
// Per-user failures are isolated: a revoked grant or malformed response
// fails that user for the run, transient API failures retry the whole
// per-user pipeline with backoff, and nothing a single user does can abort
// the run. Progress updates are emitted via channels for non-blocking status
// reporting to the CLI layer.
package tasks
