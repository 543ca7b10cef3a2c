// Package dbn defines the DBN record model and the fixed-layout binary decoder.
//
// Every record starts with a 16-byte RecordHeader followed by a body whose
// size is fixed per record type. The transport hands each record over as a
// byte slice plus its record type tag; Decode maps that pair onto exactly one
// of the concrete message types in this package.
//
// Conventions:
//   - Prices: signed 64-bit fixed point scaled by 1e9, exposed as decimal.NullDecimal
//     (UndefPrice decodes to an invalid NullDecimal)
//   - Timestamps: uint64 nanoseconds since the Unix epoch (UndefTimestamp when unset)
//   - Strings: fixed-width NUL-padded fields, trimmed at the first NUL
//   - Byte order: little-endian
package dbn
