// Package batch runs a callback over an ordered list of items.
//
// Two modes are provided:
//   - Process runs items one after another in input order
//   - ProcessConcurrent runs up to N items at once, handing each callback a
//     worker slot that no other running callback holds
//
// A SkipPolicy separates recoverable item errors, which are counted and
// skipped, from errors that abort the run. Progress is reported after every
// item through an optional callback.
package batch
