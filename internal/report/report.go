// Package report records what a migration run did, or would do in
// simulation, per source issue. A report is written as YAML, TOML or JSON
// depending on the output file extension.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Outcome is the final state of one issue.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFiltered Outcome = "filtered"
	OutcomeFailed   Outcome = "failed"
)

// Entry is the record of one source issue.
type Entry struct {
	Key     string   `json:"key" yaml:"key" toml:"key"`
	Outcome Outcome  `json:"outcome" yaml:"outcome" toml:"outcome"`
	IID     int      `json:"iid,omitempty" yaml:"iid,omitempty" toml:"iid,omitempty"`
	Reason  string   `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason,omitempty"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty" toml:"actions,omitempty"`
	Preview string   `json:"preview,omitempty" yaml:"preview,omitempty" toml:"preview,omitempty"`
}

// Report collects entries for a run. The zero value is not usable; use New.
type Report struct {
	mu         sync.Mutex
	Simulation bool      `json:"simulation" yaml:"simulation" toml:"simulation"`
	StartedAt  time.Time `json:"startedAt" yaml:"startedAt" toml:"startedAt"`
	Project    string    `json:"project" yaml:"project" toml:"project"`
	Entries    []*Entry  `json:"issues" yaml:"issues" toml:"issues"`

	index map[string]*Entry
}

// New creates an empty report.
func New(project string, simulation bool, startedAt time.Time) *Report {
	return &Report{
		Simulation: simulation,
		StartedAt:  startedAt,
		Project:    project,
		index:      make(map[string]*Entry),
	}
}

func (r *Report) entry(key string) *Entry {
	if e, ok := r.index[key]; ok {
		return e
	}
	e := &Entry{Key: key}
	r.index[key] = e
	r.Entries = append(r.Entries, e)
	return e
}

// Action appends a human readable action line for issue key.
// Safe to call on a nil report.
func (r *Report) Action(key, format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(key)
	e.Actions = append(e.Actions, fmt.Sprintf(format, args...))
}

// Finish sets the outcome of issue key.
func (r *Report) Finish(key string, outcome Outcome, iid int, reason string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(key)
	e.Outcome = outcome
	e.IID = iid
	e.Reason = reason
}

// SetPreview stores the rewritten description of issue key.
func (r *Report) SetPreview(key, text string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(key).Preview = text
}

// Lookup returns the entry for key, or nil.
func (r *Report) Lookup(key string) *Entry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index[key]
}

// Count returns how many entries ended with outcome.
func (r *Report) Count(outcome Outcome) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// Format names an output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported report extension %q (use .yaml, .toml or .json)", filepath.Ext(path))
	}
}

// Encode writes the report to w in format f.
func (r *Report) Encode(w io.Writer, f Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(r); err != nil {
			return fmt.Errorf("encode toml report: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

// WriteFile writes the report to path, choosing the format by extension.
func (r *Report) WriteFile(path string) error {
	f, err := FormatFor(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.Encode(&buf, f); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // report is not secret
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
