package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FeedEntry is one rendered entry of a persisted feed: either a single
// activity or the merged form of every activity that aggregated into the
// same bucket. The ID stays stable for the lifetime of one aggregation
// window, so re-collecting an open bucket replaces the entry in place.
type FeedEntry struct {
	ID           string
	ActivityType string
	Verb         string
	PublishedMS  int64
	Actors       []*Entity
	Objects      []*Entity
	Targets      []*Entity
}

// Entities returns the deduplicated entity list for a role, ordered by id.
func (e *FeedEntry) Entities(role Role) []*Entity {
	switch role {
	case RoleActor:
		return e.Actors
	case RoleObject:
		return e.Objects
	case RoleTarget:
		return e.Targets
	default:
		return nil
	}
}

// SetEntities replaces the entity list for a role.
func (e *FeedEntry) SetEntities(role Role, ents []*Entity) {
	switch role {
	case RoleActor:
		e.Actors = ents
	case RoleObject:
		e.Objects = ents
	case RoleTarget:
		e.Targets = ents
	}
}

// collectionObjectType marks a role rendered as a merged entity list.
const collectionObjectType = "collection"

// MarshalJSON renders the entry with a fixed field order: id,
// activityType, verb, published, actor, object, target. A role with one
// entity renders as that entity; a role with several renders as a
// collection wrapper; an empty role is omitted.
// NOTE: This is display JSON, not canonical marshaling. Aggregate keys
// come from MarshalCanonical.
func (e *FeedEntry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"id":`)
	idBytes, err := json.Marshal(e.ID)
	if err != nil {
		return nil, err
	}
	buf.Write(idBytes)

	buf.WriteString(`,"activityType":`)
	typeBytes, err := json.Marshal(e.ActivityType)
	if err != nil {
		return nil, err
	}
	buf.Write(typeBytes)

	buf.WriteString(`,"verb":`)
	verbBytes, err := json.Marshal(e.Verb)
	if err != nil {
		return nil, err
	}
	buf.Write(verbBytes)

	fmt.Fprintf(&buf, `,"published":%d`, e.PublishedMS)

	for _, role := range Roles() {
		ents := e.Entities(role)
		if len(ents) == 0 {
			continue
		}
		fmt.Fprintf(&buf, `,"%s":`, role)
		roleBytes, err := marshalRole(ents)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		buf.Write(roleBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalRole(ents []*Entity) ([]byte, error) {
	if len(ents) == 1 {
		return marshalEntity(ents[0])
	}
	items := make([]json.RawMessage, len(ents))
	for i, ent := range ents {
		b, err := marshalEntity(ent)
		if err != nil {
			return nil, err
		}
		items[i] = b
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"objectType":%q,"items":`, collectionObjectType)
	itemBytes, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	buf.Write(itemBytes)
	fmt.Fprintf(&buf, `,"totalItems":%d}`, len(ents))
	return buf.Bytes(), nil
}

// marshalEntity flattens the entity's data alongside its id and
// objectType. encoding/json sorts map keys, so output is deterministic.
func marshalEntity(ent *Entity) ([]byte, error) {
	flat := make(map[string]any, len(ent.Data)+2)
	for k, v := range ent.Data {
		flat[k] = v
	}
	flat["id"] = ent.ID
	flat["objectType"] = ent.ObjectType
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON, accepting both the single-entity and
// the collection form for each role.
func (e *FeedEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if b, ok := raw["id"]; ok {
		if err := json.Unmarshal(b, &e.ID); err != nil {
			return fmt.Errorf("id: %w", err)
		}
	}
	if b, ok := raw["activityType"]; ok {
		if err := json.Unmarshal(b, &e.ActivityType); err != nil {
			return fmt.Errorf("activityType: %w", err)
		}
	}
	if b, ok := raw["verb"]; ok {
		if err := json.Unmarshal(b, &e.Verb); err != nil {
			return fmt.Errorf("verb: %w", err)
		}
	}
	if b, ok := raw["published"]; ok {
		if err := json.Unmarshal(b, &e.PublishedMS); err != nil {
			return fmt.Errorf("published: %w", err)
		}
	}
	for _, role := range Roles() {
		b, ok := raw[string(role)]
		if !ok {
			continue
		}
		ents, err := unmarshalRole(b)
		if err != nil {
			return fmt.Errorf("%s: %w", role, err)
		}
		e.SetEntities(role, ents)
	}
	return nil
}

func unmarshalRole(data []byte) ([]*Entity, error) {
	var probe struct {
		ObjectType string            `json:"objectType"`
		Items      []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if probe.ObjectType != collectionObjectType {
		ent, err := unmarshalEntity(data)
		if err != nil {
			return nil, err
		}
		return []*Entity{ent}, nil
	}
	ents := make([]*Entity, len(probe.Items))
	for i, item := range probe.Items {
		ent, err := unmarshalEntity(item)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		ents[i] = ent
	}
	return ents, nil
}

func unmarshalEntity(data []byte) (*Entity, error) {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, err
	}
	ent := &Entity{}
	if id, ok := flat["id"].(string); ok {
		ent.ID = id
	}
	if ot, ok := flat["objectType"].(string); ok {
		ent.ObjectType = ot
	}
	delete(flat, "id")
	delete(flat, "objectType")
	if len(flat) > 0 {
		ent.Data = flat
	}
	return ent, nil
}
