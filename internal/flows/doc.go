// Package flows contains the orchestration behind each Engine operation.
//
// Each Run* function accepts a typed dependency struct of plain functions and
// returns a result carrying a failure kind instead of a public error. The root
// engine builds the dependencies once, then maps failure kinds to its sentinel
// errors, metrics, and audit events. Flows can therefore be tested with
// in-memory fakes and never see the public error taxonomy.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (import cycle).
//   - Log passwords or tokens.
package flows
