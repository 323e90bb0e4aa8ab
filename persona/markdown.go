package persona

import (
	"bufio"
	_ "embed"
	"io"
	"strings"

	"github.com/hupe1980/agentduet/core"
)

// DefaultPrefix marks the display name of a read-only default persona.
const DefaultPrefix = "[Default] "

//go:embed defaults.md
var builtinDefaults string

var headingMarkers = []string{"### Persona:", "### 角色："}

// BuiltinDefaults returns the default personas shipped with the binary.
func BuiltinDefaults() []core.Persona {
	personas, _ := ParseDefaults(strings.NewReader(builtinDefaults))
	return personas
}

// ParseDefaults parses a defaults document. Blocks whose first line is not a
// persona heading are skipped.
func ParseDefaults(r io.Reader) ([]core.Persona, error) {
	var (
		personas []core.Persona
		block    []string
	)
	flush := func() {
		if p, ok := parseBlock(block); ok {
			personas = append(personas, p)
		}
		block = block[:0]
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return personas, nil
}

func parseBlock(lines []string) (core.Persona, bool) {
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return core.Persona{}, false
	}
	heading, prompt, _ := strings.Cut(text, "\n")

	name, ok := headingName(heading)
	if !ok {
		return core.Persona{}, false
	}
	return core.Persona{
		Name:      DefaultPrefix + name,
		Prompt:    strings.TrimSpace(prompt),
		IsDefault: true,
	}, true
}

func headingName(line string) (string, bool) {
	for _, marker := range headingMarkers {
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		name := line[idx+len(marker):]
		if cut := strings.IndexByte(name, '('); cut >= 0 {
			name = name[:cut]
		}
		name = strings.TrimSpace(name)
		return name, name != ""
	}
	return "", false
}
