package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sample() *Report {
	r := New("team/app", true, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	r.Action("PROJ-1", "would create issue %q", "Login broken")
	r.Action("PROJ-1", "would add backlink note")
	r.Finish("PROJ-1", OutcomeCreated, 0, "")
	r.Finish("PROJ-2", OutcomeFiltered, 0, "resolved")
	r.Action("PROJ-3", "would update issue #%d", 7)
	r.Finish("PROJ-3", OutcomeUpdated, 7, "")
	return r
}

func TestReportCollects(t *testing.T) {
	r := sample()
	require.Len(t, r.Entries, 3)
	assert.Equal(t, []string{`would create issue "Login broken"`, "would add backlink note"}, r.Lookup("PROJ-1").Actions)
	assert.Equal(t, 1, r.Count(OutcomeFiltered))
	assert.Equal(t, 7, r.Lookup("PROJ-3").IID)
	assert.Nil(t, r.Lookup("PROJ-9"))
}

func TestNilReportIsNoop(t *testing.T) {
	var r *Report
	r.Action("X-1", "nothing")
	r.Finish("X-1", OutcomeFailed, 0, "boom")
	r.SetPreview("X-1", "text")
	assert.Nil(t, r.Lookup("X-1"))
	assert.Zero(t, r.Count(OutcomeFailed))
}

func TestFormatFor(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.yaml", FormatYAML},
		{"out.YML", FormatYAML},
		{"dir/out.toml", FormatTOML},
		{"out.json", FormatJSON},
	}
	for _, tt := range tests {
		got, err := FormatFor(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got)
	}
	_, err := FormatFor("out.csv")
	assert.ErrorContains(t, err, "unsupported report extension")
}

type decoded struct {
	Simulation bool   `json:"simulation" yaml:"simulation" toml:"simulation"`
	Project    string `json:"project" yaml:"project" toml:"project"`
	Issues     []struct {
		Key     string   `json:"key" yaml:"key" toml:"key"`
		Outcome string   `json:"outcome" yaml:"outcome" toml:"outcome"`
		IID     int      `json:"iid" yaml:"iid" toml:"iid"`
		Reason  string   `json:"reason" yaml:"reason" toml:"reason"`
		Actions []string `json:"actions" yaml:"actions" toml:"actions"`
	} `json:"issues" yaml:"issues" toml:"issues"`
}

func TestEncodeFormats(t *testing.T) {
	decoders := map[Format]func([]byte, any) error{
		FormatYAML: yaml.Unmarshal,
		FormatJSON: json.Unmarshal,
		FormatTOML: toml.Unmarshal,
	}
	for format, unmarshal := range decoders {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, sample().Encode(&buf, format))

			var got decoded
			require.NoError(t, unmarshal(buf.Bytes(), &got))
			assert.True(t, got.Simulation)
			assert.Equal(t, "team/app", got.Project)
			require.Len(t, got.Issues, 3)
			assert.Equal(t, "created", got.Issues[0].Outcome)
			assert.Len(t, got.Issues[0].Actions, 2)
			assert.Equal(t, "resolved", got.Issues[1].Reason)
			assert.Equal(t, 7, got.Issues[2].IID)
		})
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, sample().WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key": "PROJ-1"`)

	assert.Error(t, sample().WriteFile(filepath.Join(t.TempDir(), "run.txt")))
}
