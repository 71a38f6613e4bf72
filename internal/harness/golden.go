package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/wakefeed/wake/internal/activity"
)

// goldenSnapshot is the golden file shape: the scenario name plus the
// display JSON of every asserted feed.
type goldenSnapshot struct {
	Scenario string       `json:"scenario"`
	Feeds    []goldenFeed `json:"feeds"`
}

type goldenFeed struct {
	Stream  string                `json:"stream"`
	Entries []*activity.FeedEntry `json:"entries"`
}

// RenderGolden serializes a scenario result for golden comparison.
func RenderGolden(scenarioName string, result *Result) ([]byte, error) {
	snapshot := goldenSnapshot{Scenario: scenarioName}
	for _, fs := range result.Feeds {
		entries := fs.Entries
		if entries == nil {
			entries = []*activity.FeedEntry{}
		}
		snapshot.Feeds = append(snapshot.Feeds, goldenFeed{Stream: fs.Stream, Entries: entries})
	}
	return json.MarshalIndent(snapshot, "", "  ")
}

// RunGolden executes the scenario at path and compares the rendered feeds
// against golden/<scenario-name>.golden beside the scenario file, the
// same location the test command uses. Feed assertion failures in the
// scenario fail the test too.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunGolden(t *testing.T, path string) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}

	rendered, err := RenderGolden(scenario.Name, result)
	if err != nil {
		t.Fatalf("render golden: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join(filepath.Dir(path), "golden")),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, rendered)
}
