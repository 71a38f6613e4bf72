package activity

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSeed() *Seed {
	return &Seed{
		ActivityType: "content-create",
		Verb:         "create",
		Published:    time.UnixMilli(1700000000000),
		Actor:        &SeedResource{ResourceType: "user", ResourceID: "u:cam:abc"},
		Object:       &SeedResource{ResourceType: "content", ResourceID: "c:cam:doc1"},
	}
}

func TestValidateSeedAccepts(t *testing.T) {
	require.NoError(t, ValidateSeed(validSeed()))

	withTarget := validSeed()
	withTarget.Target = &SeedResource{ResourceType: "folder", ResourceID: "f:cam:proj"}
	require.NoError(t, ValidateSeed(withTarget))
}

func TestValidateSeedRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Seed)
		field  string
	}{
		{"missing activity type", func(s *Seed) { s.ActivityType = "" }, "activity_type"},
		{"missing verb", func(s *Seed) { s.Verb = "" }, "verb"},
		{"zero published", func(s *Seed) { s.Published = time.Time{} }, "published"},
		{"nil actor", func(s *Seed) { s.Actor = nil }, "actor"},
		{"nil object", func(s *Seed) { s.Object = nil }, "object"},
		{"actor missing id", func(s *Seed) { s.Actor.ResourceID = "" }, "actor.resource_id"},
		{"actor missing type", func(s *Seed) { s.Actor.ResourceType = "" }, "actor.resource_type"},
		{"target missing id", func(s *Seed) {
			s.Target = &SeedResource{ResourceType: "folder"}
		}, "target.resource_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed := validSeed()
			tt.mutate(seed)

			err := ValidateSeed(seed)
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateSeedNil(t *testing.T) {
	err := ValidateSeed(nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestIsValidationErrorWrapped(t *testing.T) {
	err := fmt.Errorf("post: %w", &ValidationError{Field: "verb", Message: "empty"})
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(errors.New("other")))
}
