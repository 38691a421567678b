package scenario

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

// TemplateData is what feeder templates see.
type TemplateData struct {
	VU        int64
	Iteration int64
	Scenario  string
	UUID      string
}

// Feeder renders per-iteration test data such as unique emails.
type Feeder struct {
	fileCache map[string][]string
	mu        sync.RWMutex
	funcMap   template.FuncMap
}

func NewFeeder() *Feeder {
	f := &Feeder{
		fileCache: make(map[string][]string),
	}

	f.funcMap = template.FuncMap{
		"randomInt":    f.randomInt,
		"randomUUID":   f.randomUUID,
		"randomChoice": f.randomChoice,
		"randomLine":   f.randomLine,
		"uuid":         f.randomUUID,
	}

	return f
}

// Preprocess turns the short forms {{vu}}, {{iter}} and {{uuid}} into field access.
func (f *Feeder) Preprocess(input string) string {
	s := input
	s = strings.ReplaceAll(s, "{{vu}}", "{{.VU}}")
	s = strings.ReplaceAll(s, "{{iter}}", "{{.Iteration}}")
	s = strings.ReplaceAll(s, "{{uuid}}", "{{.UUID}}")
	return s
}

func (f *Feeder) Parse(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(f.funcMap).Option("missingkey=error").Parse(f.Preprocess(text))
}

func (f *Feeder) Execute(t *template.Template, data TemplateData) (string, error) {
	if data.UUID == "" {
		data.UUID = uuid.NewString()
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// randomInt returns a value in [min, max).
func (f *Feeder) randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.IntN(max-min) + min
}

func (f *Feeder) randomUUID() string {
	return uuid.New().String()
}

func (f *Feeder) randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.IntN(len(choices))]
}

func (f *Feeder) randomLine(filename string) (string, error) {
	f.mu.RLock()
	lines, ok := f.fileCache[filename]
	f.mu.RUnlock()
	if !ok {
		var err error
		if lines, err = f.load(filename); err != nil {
			return "", err
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[rand.IntN(len(lines))], nil
}

func (f *Feeder) load(filename string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lines, ok := f.fileCache[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read feeder file %q: %w", filename, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	var loaded []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			loaded = append(loaded, line)
		}
	}
	f.fileCache[filename] = loaded
	return loaded, nil
}
