package definitions

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/wakefeed/wake/internal/activity"
)

// compileStream parses one stream type definition. Only the transient
// flag is data; authorizers are code.
func compileStream(name string, v cue.Value) (StreamDef, error) {
	def := StreamDef{Name: name}
	if err := v.Err(); err != nil {
		return def, formatCUEError(err)
	}

	tv := v.LookupPath(cue.ParsePath("transient"))
	if tv.Exists() {
		transient, err := tv.Bool()
		if err != nil {
			return def, formatCUEError(err)
		}
		def.Transient = transient
	}

	return def, nil
}

// compileActivity parses one activity type definition into the registry's
// spec form. Association references are parsed here so a malformed "^"
// exclusion fails at compile time, not at delivery time.
func compileActivity(name string, v cue.Value) (ActivityDef, error) {
	def := ActivityDef{Name: name}
	if err := v.Err(); err != nil {
		return def, formatCUEError(err)
	}

	streamsVal := v.LookupPath(cue.ParsePath("streams"))
	if !streamsVal.Exists() {
		return def, &CompileError{
			Field:   "streams",
			Message: "at least one stream is required",
			Pos:     v.Pos(),
		}
	}

	streams := make(map[string]activity.StreamSpec)
	iter, err := streamsVal.Fields()
	if err != nil {
		return def, formatCUEError(err)
	}
	for iter.Next() {
		streamName := iter.Label()
		spec, err := compileStreamSpec(streamName, iter.Value())
		if err != nil {
			return def, err
		}
		streams[streamName] = spec
	}
	if len(streams) == 0 {
		return def, &CompileError{
			Field:   "streams",
			Message: "at least one stream is required",
			Pos:     streamsVal.Pos(),
		}
	}

	def.Spec = activity.ActivityTypeSpec{Streams: streams}

	groupByVal := v.LookupPath(cue.ParsePath("groupBy"))
	if groupByVal.Exists() {
		pivots, err := compilePivots(groupByVal)
		if err != nil {
			return def, err
		}
		def.Spec.GroupBy = pivots
	}

	return def, nil
}

// compileStreamSpec parses one stream's router. An absent router means
// the registry default applies at delivery time.
func compileStreamSpec(streamName string, v cue.Value) (activity.StreamSpec, error) {
	var spec activity.StreamSpec

	routerVal := v.LookupPath(cue.ParsePath("router"))
	if !routerVal.Exists() {
		return spec, nil
	}

	router := make(map[activity.Role][]activity.RouteRef)
	iter, err := routerVal.Fields()
	if err != nil {
		return spec, formatCUEError(err)
	}
	for iter.Next() {
		roleName := iter.Label()
		role := activity.Role(roleName)
		if !activity.ValidRoles[role] {
			return spec, &CompileError{
				Field:   fmt.Sprintf("streams.%s.router.role", streamName),
				Message: fmt.Sprintf("invalid role %q (want actor, object or target)", roleName),
				Pos:     iter.Value().Pos(),
			}
		}

		raw, err := stringList(iter.Value())
		if err != nil {
			return spec, err
		}
		refs, parseErr := activity.ParseRouteRefs(raw)
		if parseErr != nil {
			return spec, &CompileError{
				Field:   fmt.Sprintf("streams.%s.router.%s", streamName, roleName),
				Message: parseErr.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		router[role] = refs
	}

	spec.Router = router
	return spec, nil
}

// compilePivots parses a groupBy list of role lists.
func compilePivots(v cue.Value) ([]activity.Pivot, error) {
	var pivots []activity.Pivot

	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		names, err := stringList(iter.Value())
		if err != nil {
			return nil, err
		}

		pivot := make(activity.Pivot, 0, len(names))
		for _, n := range names {
			role := activity.Role(n)
			if !activity.ValidRoles[role] {
				return nil, &CompileError{
					Field:   fmt.Sprintf("groupBy[%d]", len(pivots)),
					Message: fmt.Sprintf("invalid role %q (want actor, object or target)", n),
					Pos:     iter.Value().Pos(),
				}
			}
			pivot = append(pivot, role)
		}
		pivots = append(pivots, pivot)
	}

	return pivots, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
