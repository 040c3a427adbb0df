// Package types holds the ledger data model (addresses, accounts,
// transactions and their instructions) and its canonical binary encoding.
//
// Every record is encoded as a one byte format version followed by an RLP
// list. Decoding fails with errs.MalformedRecord on truncated or garbage
// input, errs.UnknownVersion on an unsupported format tag and
// errs.SchemaViolation on field values outside their declared domain.
package types
