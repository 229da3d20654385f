// Package storage persists the timetable catalog (groups, teachers,
// cabinets), scheduled sessions, the bell schedule, cafeteria slots and
// document fingerprints.
//
// Backends:
//   - sqlite (default): modernc.org/sqlite file database
//   - postgres: lib/pq, same schema
//   - memory: process-local maps, used by tests and dry runs
//
// All writes of one update cycle go through Store.InTx so readers never see
// a half-replaced date.
package storage
