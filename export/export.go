package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/xuri/excelize/v2"

	"github.com/hupe1980/agentduet/core"
)

// ErrUnsupportedFormat is returned for an unknown format name.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format names an export encoding. The value doubles as the file extension.
type Format string

const (
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatExcel    Format = "xlsx"
	FormatDocx     Format = "docx"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatText, FormatCSV, FormatMarkdown, FormatJSON, FormatExcel, FormatDocx}

// SheetName is the worksheet that holds the dialogue in Excel exports.
const SheetName = "Dialogue"

// DocxTitle heads the dialogue section of Word exports.
const DocxTitle = "Dialogue"

// ParseFormat resolves a user supplied name such as "MD", ".txt" or "markdown".
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	switch n {
	case "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "docx", "word":
		return FormatDocx, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string { return "." + string(f) }

// Write encodes t in format f to w.
func Write(w io.Writer, t core.Transcript, f Format) error {
	switch f {
	case FormatText:
		_, err := io.WriteString(w, Text(t.Entries))
		return err
	case FormatCSV:
		return writeCSV(w, t.Entries)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(t.Entries))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatExcel:
		return writeExcel(w, t)
	case FormatDocx:
		return writeDocx(w, t.Entries)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(f))
}

// Text renders the log as plain text. System entries are written as they are.
func Text(entries []core.LogEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsSystem() {
			parts = append(parts, e.Content)
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]:\n%s\n", e.Speaker, e.Content))
	}
	return strings.Join(parts, "\n")
}

// Markdown renders agent turns as a speaker heading followed by a quote.
func Markdown(entries []core.LogEntry) string {
	parts := make([]string, 0, len(entries)*2)
	for _, e := range entries {
		if e.IsSystem() {
			parts = append(parts, e.Content)
			continue
		}
		parts = append(parts,
			"### "+e.Speaker,
			"> "+strings.ReplaceAll(e.Content, "\n", "\n> ")+"\n",
		)
	}
	return strings.Join(parts, "\n")
}

func writeCSV(w io.Writer, entries []core.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"speaker", "content"}); err != nil {
		return err
	}
	for _, e := range core.DialogueEntries(entries) {
		if err := cw.Write([]string{e.Speaker, e.Content}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeExcel(w io.Writer, t core.Transcript) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &[]any{"speaker", "content"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, e := range core.DialogueEntries(t.Entries) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &[]any{e.Speaker, e.Content}); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:    t.Topic,
		Creator:  "agentduet",
		Created:  t.StartedAt.UTC().Format(time.RFC3339),
		Modified: t.FinishedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	_, err := f.WriteTo(w)
	return err
}

// writeDocx lays out the log as a Word document. System entries before the
// first turn lead the document, then a title, then one bold speaker line and
// one content paragraph per turn. Later system entries stay in place as plain
// paragraphs.
func writeDocx(w io.Writer, entries []core.LogEntry) error {
	doc := docx.New().WithDefaultTheme()

	titled := false
	for _, e := range entries {
		if e.IsSystem() {
			doc.AddParagraph().AddText(e.Content)
			continue
		}
		if !titled {
			doc.AddParagraph().AddText(DocxTitle).Bold().Size("32")
			titled = true
		}
		doc.AddParagraph().AddText(e.Speaker).Bold().Size("26")
		doc.AddParagraph().AddText(e.Content)
	}
	if !titled {
		doc.AddParagraph().AddText(DocxTitle).Bold().Size("32")
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}
