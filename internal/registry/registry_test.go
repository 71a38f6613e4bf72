package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
	"github.com/wakefeed/wake/internal/propagation"
)

func contentCreateSpec() activity.ActivityTypeSpec {
	return activity.ActivityTypeSpec{
		Streams: map[string]activity.StreamSpec{
			"activity": {
				Router: map[activity.Role][]activity.RouteRef{
					activity.RoleActor:  {activity.Include("self"), activity.Include("followers")},
					activity.RoleObject: {activity.Include("routes")},
				},
			},
		},
		GroupBy: []activity.Pivot{{activity.RoleActor}},
	}
}

func noopAssociation(context.Context, *assoc.Context, *activity.Entity) ([]string, error) {
	return nil, nil
}

func TestRegisterActivityType(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterActivityType("content-create", contentCreateSpec()))

	spec, ok := r.ActivityType("content-create")
	require.True(t, ok)
	assert.Len(t, spec.Streams, 1)
	assert.Equal(t, []string{"content-create"}, r.ActivityTypeNames())
}

func TestRegisterActivityTypeDuplicateFatal(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterActivityType("content-create", contentCreateSpec()))

	err := r.RegisterActivityType("content-create", contentCreateSpec())
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterActivityTypeShapeValidation(t *testing.T) {
	tests := []struct {
		name string
		spec activity.ActivityTypeSpec
	}{
		{"no streams", activity.ActivityTypeSpec{}},
		{"invalid role", activity.ActivityTypeSpec{
			Streams: map[string]activity.StreamSpec{
				"activity": {Router: map[activity.Role][]activity.RouteRef{
					"owner": {activity.Include("self")},
				}},
			},
		}},
		{"empty role list", activity.ActivityTypeSpec{
			Streams: map[string]activity.StreamSpec{
				"activity": {Router: map[activity.Role][]activity.RouteRef{
					activity.RoleActor: {},
				}},
			},
		}},
		{"empty association name", activity.ActivityTypeSpec{
			Streams: map[string]activity.StreamSpec{
				"activity": {Router: map[activity.Role][]activity.RouteRef{
					activity.RoleActor: {{Association: ""}},
				}},
			},
		}},
		{"empty pivot", activity.ActivityTypeSpec{
			Streams: map[string]activity.StreamSpec{"activity": {}},
			GroupBy: []activity.Pivot{{}},
		}},
		{"invalid pivot role", activity.ActivityTypeSpec{
			Streams: map[string]activity.StreamSpec{"activity": {}},
			GroupBy: []activity.Pivot{{"owner"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			err := r.RegisterActivityType("content-create", tt.spec)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestStreamWithoutRouterFallsBack(t *testing.T) {
	r := New()
	spec := activity.ActivityTypeSpec{
		Streams: map[string]activity.StreamSpec{"activity": {}},
	}
	require.NoError(t, r.RegisterActivityType("content-create", spec))

	router := r.RouterFor(spec.Streams["activity"])
	assert.Equal(t, StockDefaultRouter(), router)

	declared := contentCreateSpec().Streams["activity"]
	assert.Equal(t, declared.Router, r.RouterFor(declared))
}

func TestWithDefaultRouterOverride(t *testing.T) {
	custom := map[activity.Role][]activity.RouteRef{
		activity.RoleActor: {activity.Include("self")},
	}
	r := New(WithDefaultRouter(custom))
	assert.Equal(t, custom, r.RouterFor(activity.StreamSpec{}))
}

func TestRegisterEntityTypeDuplicateFatal(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterEntityType("content", EntityType{}))

	err := r.RegisterEntityType("content", EntityType{})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestRegisterAssociation(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAssociation("content", "members", noopAssociation))

	_, ok := r.Association("content", "members")
	assert.True(t, ok)
	_, ok = r.Association("content", "followers")
	assert.False(t, ok)
	_, ok = r.Association("user", "members")
	assert.False(t, ok)
}

func TestRegisterAssociationRejects(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterAssociation("content", "members", noopAssociation))

	err := r.RegisterAssociation("content", "members", noopAssociation)
	require.Error(t, err, "duplicate (entityType, name) is fatal")

	require.Error(t, r.RegisterAssociation("content", "self", noopAssociation))
	require.Error(t, r.RegisterAssociation("content", "routes", nil))
	require.Error(t, r.RegisterAssociation("", "members", noopAssociation))
}

func TestRegisterStreamType(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterStreamType("activity", StreamType{}))
	require.NoError(t, r.RegisterStreamType("message", StreamType{Transient: true}))

	st, ok := r.StreamType("message")
	require.True(t, ok)
	assert.True(t, st.Transient)
	assert.Equal(t, []string{"activity", "message"}, r.StreamTypeNames())

	require.Error(t, r.RegisterStreamType("activity", StreamType{}), "duplicate is fatal")
	require.Error(t, r.RegisterStreamType("bad#name", StreamType{}))
}

func TestSealRejectsUnknownStreamType(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterActivityType("content-create", contentCreateSpec()))

	err := r.Seal()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `stream "activity" has no registered stream type`)
}

func TestSealFreezesRegistry(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterStreamType("activity", StreamType{}))
	require.NoError(t, r.RegisterActivityType("content-create", contentCreateSpec()))

	require.False(t, r.Sealed())
	require.NoError(t, r.Seal())
	require.True(t, r.Sealed())

	assert.Error(t, r.RegisterActivityType("content-update", contentCreateSpec()))
	assert.Error(t, r.RegisterEntityType("content", EntityType{}))
	assert.Error(t, r.RegisterAssociation("content", "members", noopAssociation))
	assert.Error(t, r.RegisterStreamType("notification", StreamType{}))
	assert.Error(t, r.Seal(), "sealing twice is a programming error")
}

func TestProducerForFallsBack(t *testing.T) {
	r := New()
	custom := func(_ context.Context, res *activity.SeedResource) (*activity.Entity, error) {
		return &activity.Entity{ID: res.ResourceID, ObjectType: "custom"}, nil
	}
	require.NoError(t, r.RegisterEntityType("content", EntityType{Producer: custom}))

	ent, err := r.ProducerFor("content")(context.Background(),
		&activity.SeedResource{ResourceType: "content", ResourceID: "c:cam:doc1"})
	require.NoError(t, err)
	assert.Equal(t, "custom", ent.ObjectType)

	ent, err = r.ProducerFor("user")(context.Background(),
		&activity.SeedResource{ResourceType: "user", ResourceID: "u:cam:abc"})
	require.NoError(t, err)
	assert.Equal(t, "user", ent.ObjectType, "unregistered types use the default producer")
}

func TestPropagationForFallsBack(t *testing.T) {
	r := New()
	sess := assoc.NewSession(r, nil)
	ent := &activity.Entity{
		ID:         "c:cam:doc1",
		ObjectType: "content",
		Data:       map[string]any{"visibility": "public"},
	}

	rules, err := r.PropagationFor("content")(context.Background(), sess.ContextFor(ent), ent)
	require.NoError(t, err)
	assert.Equal(t, []propagation.Rule{propagation.Public()}, rules)
}
