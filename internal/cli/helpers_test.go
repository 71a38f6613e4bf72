package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// validDefsCUE is a minimal definition directory: one durable stream and
// one activity type that self-routes on the actor.
const validDefsCUE = `package wake

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
		groupBy: [["actor"]]
	}
}
`

// writeDefs writes CUE definition content into a fresh temp directory.
func writeDefs(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wake.cue"), []byte(content), 0o644))
	return dir
}

// writeSeedFile writes seed JSON into a fresh temp directory and returns
// the file path.
func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// tempDBPath returns a SQLite path inside a fresh temp directory. The
// file itself is created by the first command that opens it.
func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "wake.db")
}

// aliceSeedJSON is one valid seed for the validDefsCUE activity type.
const aliceSeedJSON = `{
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
}`
