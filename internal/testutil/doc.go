// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing run settings, scripted backends and
// transcripts. These helpers are intentionally minimal and are not intended
// for production usage.
package testutil
