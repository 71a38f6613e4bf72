package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// objectPivotDefsCUE groups by object, so seeds with different objects
// land in separate aggregation buckets and produce separate entries.
const objectPivotDefsCUE = `package wake

stream: {
	activity: {}
}

activity: {
	"content-create": {
		streams: {
			activity: {
				router: {
					actor: ["self"]
				}
			}
		}
		groupBy: [["object"]]
	}
}
`

// twoDocsSeedJSON posts two documents an hour apart, both by alice.
const twoDocsSeedJSON = `[
{
	"activity_type": "content-create",
	"verb": "post",
	"published": "2026-02-03T10:00:00Z",
	"actor": {
		"resource_type": "user",
		"resource_id": "user:acme:alice",
		"data": {"visibility": "public"}
	},
	"object": {
		"resource_type": "document",
		"resource_id": "document:acme:doc-1",
		"data": {"visibility": "public"}
	}
},
{
	"activity_type": "content-create",
	"verb": "post",
	"published": "2026-02-03T11:00:00Z",
	"actor": {
		"resource_type": "user",
		"resource_id": "user:acme:alice",
		"data": {"visibility": "public"}
	},
	"object": {
		"resource_type": "document",
		"resource_id": "document:acme:doc-2",
		"data": {"visibility": "public"}
	}
}
]`

// collectAll runs one collection pass as test setup.
func collectAll(t *testing.T, defsDir, dbPath string) {
	t.Helper()
	cmd := NewCollectCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, defsDir})
	require.NoError(t, cmd.Execute())
}

func TestFeedMissingStreamFlag(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", tempDBPath(t), defsDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "stream")
}

func TestFeedInvalidStreamID(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", tempDBPath(t), "--stream", "not-a-stream-id", defsDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stream ID")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFeedEmptyStream(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", tempDBPath(t), "--stream", "user:acme:alice#activity", defsDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Feed user:acme:alice#activity is empty.")
}

func TestFeedAfterPostAndCollect(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)
	dbPath := tempDBPath(t)
	postSeed(t, defsDir, dbPath, writeSeedFile(t, aliceSeedJSON))
	collectAll(t, defsDir, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--stream", "user:acme:alice#activity", defsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Feed user:acme:alice#activity (1 entries):")
	assert.Contains(t, output, `"activityType": "content-create"`)
	assert.Contains(t, output, "user:acme:alice")
	assert.Contains(t, output, "document:acme:doc-1")
}

func TestFeedJSON(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)
	dbPath := tempDBPath(t)
	postSeed(t, defsDir, dbPath, writeSeedFile(t, aliceSeedJSON))
	collectAll(t, defsDir, dbPath)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--stream", "user:acme:alice#activity", defsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user:acme:alice#activity", data["stream"])

	entries, ok := data["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)

	entry := entries[0].(map[string]any)
	assert.Equal(t, "content-create", entry["activityType"])
	assert.Equal(t, "post", entry["verb"])
}

func TestFeedEmptyStreamJSON(t *testing.T) {
	defsDir := writeDefs(t, validDefsCUE)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewFeedCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", tempDBPath(t), "--stream", "user:acme:alice#activity", defsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	entries, ok := data["entries"].([]any)
	require.True(t, ok)
	assert.Empty(t, entries)
}

func TestFeedPagination(t *testing.T) {
	defsDir := writeDefs(t, objectPivotDefsCUE)
	dbPath := tempDBPath(t)
	postSeed(t, defsDir, dbPath, writeSeedFile(t, twoDocsSeedJSON))
	collectAll(t, defsDir, dbPath)

	// Page 1: newest entry plus a continuation token.
	buf := &bytes.Buffer{}
	cmd := NewFeedCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, "--stream", "user:acme:alice#activity", "--limit", "1", defsDir})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	entries := data["entries"].([]any)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, float64(1770116400000), first["published"]) // 2026-02-03T11:00:00Z

	token, ok := data["next_token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// Page 2: the older entry.
	buf2 := &bytes.Buffer{}
	cmd2 := NewFeedCommand(&RootOptions{Format: "json"})
	cmd2.SetOut(buf2)
	cmd2.SetErr(&bytes.Buffer{})
	cmd2.SetArgs([]string{"--db", dbPath, "--stream", "user:acme:alice#activity", "--limit", "1", "--start", token, defsDir})
	require.NoError(t, cmd2.Execute())

	var resp2 CLIResponse
	require.NoError(t, json.Unmarshal(buf2.Bytes(), &resp2))
	data2 := resp2.Data.(map[string]any)
	entries2 := data2["entries"].([]any)
	require.Len(t, entries2, 1)
	second := entries2[0].(map[string]any)
	assert.Equal(t, float64(1770112800000), second["published"]) // 2026-02-03T10:00:00Z
}
