// Package database provides connection pool management for TimescaleDB.
//
// The recorder writes every routed stream into one TimescaleDB database:
//   - Hypertables: trades, quotes, book_snapshots, bars, statuses
//   - Plain table: instrument_definitions (upserted reference data)
//
// schema.sql creates the tables when database.migrate is set.
package database
