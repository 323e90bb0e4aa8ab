// Package session houses concrete implementations of core.TranscriptStore.
// The interface itself lives in the core package so the engine depends only on
// the contract; the wiring layer decides which archive to instantiate.
//
// InMemoryStore keeps transcripts in a process local map and suits tests and
// one-shot runs. FileStore keeps a history folder with one plain text
// rendering and one JSON document per finished run.
package session
