// Package repositories implements SQLite persistence for the token store and run ledger.
//
// Key Implementations:
//   - [UserRepository] : enrolled users with their OAuth credentials (the token store)
//   - [RunRepository] : monthly runs and per-user commit records (the run ledger)
//
// The orchestrator is the only writer of runs and commit records; the token
// manager is the only writer of user token fields. Reads may be concurrent.
package repositories
