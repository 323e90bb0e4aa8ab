// Package export renders finished dialogue transcripts into files.
//
// Every format is a pure function of the transcript: two calls with the same
// transcript produce the same bytes. Supported formats are plain text, CSV,
// Markdown, JSON and Excel workbooks.
package export
