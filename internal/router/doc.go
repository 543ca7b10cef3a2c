// Package router implements the record router of the recorder.
//
// The router:
//   - Pulls decoded records from the live client
//   - Keeps the instrument symbology current from mapping and definition records
//   - Converts market data into typed messages carrying the resolved symbol
//   - Fans them out to one queue per writer, plus a latest-quote queue for the cache
//   - Counts routed, dropped and unroutable records
package router
