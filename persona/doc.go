// Package persona manages the personas and conversation styles offered to a
// dialogue.
//
// Default personas are parsed from a markdown document and are read-only.
// User personas and styles live in small JSON files that are rewritten on
// every change. Both stores can export their user entries as a JSON backup
// and import such a backup again.
//
// Markdown format of the defaults:
//
//	### Persona: Socrates (philosopher)
//	You are Socrates. Answer with questions.
//	---
//	### Persona: Pragmatist
//	You focus on what works in practice.
//
// Blocks are separated by lines consisting of "---". The first line of a
// block names the persona; everything after it is the prompt.
package persona
