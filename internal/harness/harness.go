package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
	"github.com/wakefeed/wake/internal/definitions"
	"github.com/wakefeed/wake/internal/engine"
	"github.com/wakefeed/wake/internal/registry"
	"github.com/wakefeed/wake/internal/store"
	"github.com/wakefeed/wake/internal/testutil"
)

// scenarioEpoch is where every scenario clock starts. Fixed so entry
// timestamps in golden files never drift.
var scenarioEpoch = time.UnixMilli(1_700_000_000_000)

// feedReadLimit bounds how many entries one feed assertion reads.
const feedReadLimit = 100

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every feed expectation matched.
	Pass bool

	// Errors lists assertion failures. Empty when Pass is true.
	Errors []string

	// Feeds holds the final read of every asserted stream, in scenario
	// order. Golden files render from these.
	Feeds []FeedSnapshot
}

// FeedSnapshot is the final read of one asserted stream.
type FeedSnapshot struct {
	Stream  string
	Entries []*activity.FeedEntry
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes one scenario against a fresh in-memory engine. Execution
// failures (bad definitions, rejected posts, malformed steps) return an
// error; feed assertion failures land in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	defs, errs := definitions.Load(scenario.Definitions, definitions.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile definitions: %w", errs[0])
	}

	reg := registry.New()
	if err := defs.Apply(reg); err != nil {
		return nil, fmt.Errorf("apply definitions: %w", err)
	}
	if err := registerAssociations(reg, scenario.Associations); err != nil {
		return nil, err
	}
	if err := reg.Seal(); err != nil {
		return nil, fmt.Errorf("seal registry: %w", err)
	}

	cfg := engine.DefaultConfig()
	if len(scenario.Config) > 0 {
		raw, err := yaml.Marshal(scenario.Config)
		if err != nil {
			return nil, fmt.Errorf("marshal config overrides: %w", err)
		}
		if cfg, err = engine.ParseConfig(raw); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock(scenarioEpoch)
	eng := engine.New(reg, st, nil,
		engine.WithConfig(cfg),
		engine.WithClock(clock),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("entry")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := runStep(ctx, eng, clock, &step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result := &Result{Pass: true}
	for _, fe := range scenario.Feeds {
		principal := fe.As
		if principal == "" {
			owner, _, err := activity.ParseStreamID(fe.Stream)
			if err != nil {
				return nil, fmt.Errorf("feed %s: %w", fe.Stream, err)
			}
			principal = owner
		}
		entries, _, err := eng.Feed(ctx, principal, fe.Stream, "", feedReadLimit)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", fe.Stream, err)
		}
		result.Feeds = append(result.Feeds, FeedSnapshot{Stream: fe.Stream, Entries: entries})
		for _, msg := range matchFeed(fe, entries) {
			result.addError(msg)
		}
	}
	return result, nil
}

func runStep(ctx context.Context, eng *engine.Engine, clock *testutil.FakeClock, step *Step) error {
	switch {
	case step.Post != nil:
		if err := eng.PostActivity(ctx, step.Post.seed(clock.Now())); err != nil {
			return fmt.Errorf("post %s: %w", step.Post.Activity, err)
		}
		return eng.Drain(ctx)

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		clock.Advance(d)
		return nil

	case step.Collect != nil:
		var err error
		if len(step.Collect.Streams) > 0 {
			_, err = eng.CollectStreams(ctx, step.Collect.Streams)
		} else {
			_, err = eng.CollectAll(ctx)
		}
		if err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		return nil

	case step.Reset != nil:
		if err := eng.ResetAggregation(ctx, step.Reset.Streams); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		return nil

	case step.Prune != "":
		d, err := time.ParseDuration(step.Prune)
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		if _, err := eng.PruneEntries(ctx, d); err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		return nil
	}
	return fmt.Errorf("empty step")
}

func (p *PostStep) seed(published time.Time) *activity.Seed {
	return &activity.Seed{
		ActivityType: p.Activity,
		Verb:         p.Verb,
		Published:    published,
		Actor:        p.Actor.resource(),
		Object:       p.Object.resource(),
		Target:       p.Target.resource(),
	}
}

func (r *ResourceStep) resource() *activity.SeedResource {
	if r == nil {
		return nil
	}
	res := &activity.SeedResource{ResourceType: r.Type, ResourceID: r.ID}
	if len(r.Data) > 0 {
		res.Data = r.Data
	}
	return res
}

// registerAssociations turns the scenario's association tables into
// registry functions. IDs missing from a table resolve to the empty set,
// the same way unregistered associations do.
func registerAssociations(reg *registry.Registry, tables map[string]map[string]map[string][]string) error {
	for entityType, byName := range tables {
		for name, table := range byName {
			if err := reg.RegisterAssociation(entityType, name, associationTable(table)); err != nil {
				return fmt.Errorf("associations.%s.%s: %w", entityType, name, err)
			}
		}
	}
	return nil
}

func associationTable(table map[string][]string) assoc.Func {
	return func(_ context.Context, _ *assoc.Context, e *activity.Entity) ([]string, error) {
		return table[e.ID], nil
	}
}
