package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "invalid-orders.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "invalid-orders", sc.Name)
	assert.Equal(t, filepath.Join("testdata", "orders.sch"), sc.Schema,
		"paths resolve relative to the scenario file")
	assert.Equal(t, filepath.Join("testdata", "orders-invalid.xml"), sc.Document)
	assert.Equal(t, "INVALID", sc.Expect.Verdict)

	require.NotNil(t, sc.Expect.RecordCount)
	assert.Equal(t, 4, *sc.Expect.RecordCount)

	require.Len(t, sc.Expect.Records, 2)
	assert.Equal(t, "positive", sc.Expect.Records[0].Assertion)
	require.NotNil(t, sc.Expect.Records[0].Outcome)
	assert.False(t, *sc.Expect.Records[0].Outcome)
	assert.Equal(t, "report", sc.Expect.Records[1].Kind)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `name: typo
schema: s.sch
document: d.xml
binding:
  - name: x
    value: 1
expect:
  verdict: VALID
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binding")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "schema: s.sch\ndocument: d.xml\nexpect:\n  verdict: VALID\n",
			want: "name is required",
		},
		{
			name: "missing schema",
			body: "name: x\ndocument: d.xml\nexpect:\n  verdict: VALID\n",
			want: "schema is required",
		},
		{
			name: "missing document",
			body: "name: x\nschema: s.sch\nexpect:\n  verdict: VALID\n",
			want: "document is required",
		},
		{
			name: "missing verdict",
			body: "name: x\nschema: s.sch\ndocument: d.xml\n",
			want: "expect.verdict is required",
		},
		{
			name: "binding without name",
			body: "name: x\nschema: s.sch\ndocument: d.xml\nbindings:\n  - value: 1\nexpect:\n  verdict: VALID\n",
			want: "bindings[0]: name is required",
		},
		{
			name: "negative record count",
			body: "name: x\nschema: s.sch\ndocument: d.xml\nexpect:\n  verdict: VALID\n  record_count: -1\n",
			want: "record_count must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_NotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "does-not-exist.yaml"))
	require.Error(t, err)
}
