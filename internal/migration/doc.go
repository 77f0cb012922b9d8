// Package migration moves users, third-party bindings, images, ratings and
// preferences out of the legacy UC and UP stores into Leporid and Usagipass.
//
// Every source row is handled as one unit of work committed on its own.
// Re-running a migration is idempotent: rows found in the target are
// counted as existing rather than written twice. Connectivity failures abort
// the run; validation and reference failures skip the unit and are reported.
package migration
