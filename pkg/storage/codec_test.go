package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/jobsuite/pkg/core"
)

func TestEncodeRecord_FlatMapping(t *testing.T) {
	st := sampleStatus("a")
	st.Note = "true"

	data, err := EncodeRecord(st)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, "progress: 0.42\n")
	assert.Contains(t, text, "stopRequested: false\n")
	assert.Contains(t, text, "endTime: \"\"\n")
	assert.Contains(t, text, "prop.files: [a.csv, b.csv, \"true\"]\n")

	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.True(t, st.Equal(got))
	assert.Equal(t, "true", got.Note)
}

func TestEncodeRecord_WholeProgress(t *testing.T) {
	st := core.NewStatus("a")
	st.SetProgress(1)

	data, err := EncodeRecord(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), "progress: 1.0\n")
}

func TestDecodeRecord_IgnoresUnknownKeys(t *testing.T) {
	data := []byte(`jobId: a
state: completed
progress: 1
owner: someone-else
prop.count: ["3"]
`)
	got, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.Equal(t, []string{"count"}, got.Properties.Keys())
}

func TestDecodeRecord_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "  \n"},
		{"not a mapping", "- a\n- b\n"},
		{"missing job id", "state: RUNNING\n"},
		{"bad state", "jobId: a\nstate: EXPLODED\n"},
		{"bad time", "jobId: a\nstartTime: yesterday\n"},
		{"bad progress", "jobId: a\nprogress: lots\n"},
		{"bad property", "jobId: a\nprop.x: {nested: map}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.data))
			assert.ErrorIs(t, err, core.ErrCorruptRecord)
		})
	}
}

func TestDecodeRecord_ClampsProgress(t *testing.T) {
	got, err := DecodeRecord([]byte("jobId: a\nprogress: 3.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Progress)
}
