package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario drives the real engine through a scripted sequence of posts,
// clock advances and operator calls, then asserts on the resulting feeds.
// Scenarios run against a fresh in-memory store with a fake clock and a
// fixed entry ID generator, so output is fully deterministic.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is the CUE definition directory to compile and register.
	// A relative path resolves against the scenario file location.
	Definitions string `yaml:"definitions"`

	// Config optionally overrides engine configuration keys. Same keys
	// and typo checking as the engine's YAML config file.
	Config map[string]any `yaml:"config,omitempty"`

	// Associations supplies data-backed association functions, keyed as
	// entity type, association name, source entity ID, target IDs. Code
	// registrations are not available to scenarios; this map stands in.
	Associations map[string]map[string]map[string][]string `yaml:"associations,omitempty"`

	// Steps is the script. Each step carries exactly one operation.
	Steps []Step `yaml:"steps"`

	// Feeds asserts on final feed state. An expectation with no entries
	// asserts the feed reads empty.
	Feeds []FeedExpect `yaml:"feeds"`
}

// Step is one scripted operation. Exactly one field must be set.
type Step struct {
	// Post submits an activity seed and synchronously drains the queue.
	Post *PostStep `yaml:"post,omitempty"`

	// Advance moves the fake clock forward, e.g. "16m".
	Advance string `yaml:"advance,omitempty"`

	// Collect runs one collection pass, over everything or the named
	// streams. Use an empty mapping for everything: `collect: {}`.
	Collect *CollectStep `yaml:"collect,omitempty"`

	// Reset discards pending aggregation state for the named streams.
	Reset *ResetStep `yaml:"reset,omitempty"`

	// Prune deletes persisted entries older than the given duration.
	Prune string `yaml:"prune,omitempty"`
}

// PostStep describes one activity seed. Published is always the fake
// clock's current time; use advance steps to space posts out.
type PostStep struct {
	Activity string        `yaml:"activity"`
	Verb     string        `yaml:"verb"`
	Actor    *ResourceStep `yaml:"actor"`
	Object   *ResourceStep `yaml:"object"`
	Target   *ResourceStep `yaml:"target,omitempty"`
}

// ResourceStep names one seed resource. Data is carried into the produced
// entity; declare `visibility: public` for anything that should propagate
// beyond tenant routes.
type ResourceStep struct {
	Type string         `yaml:"type"`
	ID   string         `yaml:"id"`
	Data map[string]any `yaml:"data,omitempty"`
}

// CollectStep scopes a collection pass. No streams means all.
type CollectStep struct {
	Streams []string `yaml:"streams,omitempty"`
}

// ResetStep names the streams whose pending aggregation state to discard.
type ResetStep struct {
	Streams []string `yaml:"streams"`
}

// FeedExpect asserts the final content of one stream.
type FeedExpect struct {
	// Stream is the full stream ID, e.g. "user:acme:alice#activity".
	Stream string `yaml:"stream"`

	// As is the reading principal. Defaults to the stream's owner.
	As string `yaml:"as,omitempty"`

	// Entries describes the expected feed, newest first. Empty means the
	// feed must read empty.
	Entries []EntryExpect `yaml:"entries,omitempty"`
}

// EntryExpect matches one feed entry. Role lists match entity IDs exactly
// and in order; an absent list skips that role.
type EntryExpect struct {
	Activity string   `yaml:"activity"`
	Verb     string   `yaml:"verb,omitempty"`
	Actors   []string `yaml:"actors,omitempty"`
	Objects  []string `yaml:"objects,omitempty"`
	Targets  []string `yaml:"targets,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected, and the definitions path is resolved relative to the scenario
// file before validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) {
		scenario.Definitions = filepath.Join(filepath.Dir(path), scenario.Definitions)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definitions == "" {
		return fmt.Errorf("definitions directory is required")
	}
	if info, err := os.Stat(s.Definitions); err != nil || !info.IsDir() {
		return fmt.Errorf("definitions directory not found: %s", s.Definitions)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Feeds) == 0 {
		return fmt.Errorf("feeds list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(&step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, fe := range s.Feeds {
		if fe.Stream == "" {
			return fmt.Errorf("feeds[%d]: stream is required", i)
		}
		for j, entry := range fe.Entries {
			if entry.Activity == "" {
				return fmt.Errorf("feeds[%d].entries[%d]: activity is required", i, j)
			}
		}
	}
	return nil
}

func validateStep(step *Step) error {
	set := 0
	if step.Post != nil {
		set++
	}
	if step.Advance != "" {
		set++
	}
	if step.Collect != nil {
		set++
	}
	if step.Reset != nil {
		set++
	}
	if step.Prune != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of post, advance, collect, reset, prune is required")
	}

	switch {
	case step.Post != nil:
		return validatePost(step.Post)
	case step.Advance != "":
		return validateDuration("advance", step.Advance)
	case step.Prune != "":
		return validateDuration("prune", step.Prune)
	case step.Reset != nil && len(step.Reset.Streams) == 0:
		return fmt.Errorf("reset: streams list is required")
	}
	return nil
}

func validatePost(p *PostStep) error {
	if p.Activity == "" {
		return fmt.Errorf("post: activity is required")
	}
	if p.Verb == "" {
		return fmt.Errorf("post: verb is required")
	}
	if err := validateResource("actor", p.Actor, true); err != nil {
		return err
	}
	if err := validateResource("object", p.Object, true); err != nil {
		return err
	}
	return validateResource("target", p.Target, false)
}

func validateResource(role string, r *ResourceStep, required bool) error {
	if r == nil {
		if required {
			return fmt.Errorf("post: %s is required", role)
		}
		return nil
	}
	if r.Type == "" || r.ID == "" {
		return fmt.Errorf("post: %s needs type and id", role)
	}
	return nil
}

func validateDuration(field, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: duration must be positive, got %s", field, raw)
	}
	return nil
}
