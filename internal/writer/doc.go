// Package writer implements batch writers for the routed record streams.
//
// Writers:
//   - Trade writer (trades)
//   - Quote writer (quotes, top of book)
//   - Book writer (book_snapshots, ten-level depth as JSONB)
//   - Bar writer (bars)
//   - Status writer (statuses)
//   - Definition writer (instrument_definitions)
//
// Market data tables are append-only: duplicates from replays and
// reconnects are skipped with ON CONFLICT DO NOTHING. Definitions are
// upserted by instrument id. Prices are stored as NUMERIC.
package writer
