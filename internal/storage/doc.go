// Package storage is the task store collaborator consumed by the scheduling
// engine.
//
// The engine treats it as the sole source of truth and the sole synchronization
// point: all operations are atomic at single-task granularity, and the
// materialization claim (ClaimMaterialization) is an atomic read-check-write on
// one field so concurrent completions of the same task race safely.
//
// Drivers:
//   - memory: mutex-guarded map (tests, ephemeral runs)
//   - file:   JSON snapshot with atomic rename
//   - sqlite: SQLite database file (WAL)
package storage
