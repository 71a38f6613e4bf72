// Package definitions compiles CUE definition directories into registry
// registrations. Definitions declare the data-shaped half of a deployment
// (stream types and activity types); producers, associations and feed
// authorizers are code and are registered by the embedding platform.
//
// A definition directory holds .cue files with two top-level structs:
//
//	stream: {
//		activity: {}
//		message: {transient: true}
//	}
//
//	activity: {
//		"content-create": {
//			streams: {
//				activity: {
//					router: {
//						actor:  ["self", "followers"]
//						object: ["routes", "^author"]
//					}
//				}
//			}
//			groupBy: [["actor"], ["object"]]
//		}
//	}
//
// A stream with no router falls back to the registry's default router.
// A "^" prefix turns a reference into an exclusion.
package definitions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/registry"
)

// LoadMode controls how errors are handled during definition loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// StreamDef is one compiled stream type definition.
type StreamDef struct {
	Name      string `json:"name"`
	Transient bool   `json:"transient,omitempty"`
}

// ActivityDef is one compiled activity type definition.
type ActivityDef struct {
	Name string                    `json:"name"`
	Spec activity.ActivityTypeSpec `json:"spec"`
}

// Definitions is the compiled content of one definition directory,
// sorted by name for deterministic registration and output.
type Definitions struct {
	Streams    []StreamDef
	Activities []ActivityDef
	FileCount  int
}

// Load compiles the CUE definitions under dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Definitions, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &Definitions{FileCount: len(cueFiles)}

	streamsVal := value.LookupPath(cue.ParsePath("stream"))
	if streamsVal.Exists() {
		iter, iterErr := streamsVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating stream types: %v", iterErr)})
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			for iter.Next() {
				def, compileErr := compileStream(iter.Label(), iter.Value())
				if compileErr != nil {
					errs = append(errs, convertCompileError(compileErr, "stream."+iter.Label()))
					if mode == LoadModeFailFast {
						return result, errs
					}
					continue
				}
				result.Streams = append(result.Streams, def)
			}
		}
	}

	activitiesVal := value.LookupPath(cue.ParsePath("activity"))
	if activitiesVal.Exists() {
		iter, iterErr := activitiesVal.Fields()
		if iterErr != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating activity types: %v", iterErr)})
			if mode == LoadModeFailFast {
				return result, errs
			}
		} else {
			for iter.Next() {
				def, compileErr := compileActivity(iter.Label(), iter.Value())
				if compileErr != nil {
					errs = append(errs, convertCompileError(compileErr, "activity."+iter.Label()))
					if mode == LoadModeFailFast {
						return result, errs
					}
					continue
				}
				result.Activities = append(result.Activities, def)
			}
		}
	}

	if len(result.Streams) == 0 && len(result.Activities) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no stream or activity definitions found"})
	}

	slices.SortFunc(result.Streams, func(a, b StreamDef) int {
		return strings.Compare(a.Name, b.Name)
	})
	slices.SortFunc(result.Activities, func(a, b ActivityDef) int {
		return strings.Compare(a.Name, b.Name)
	})

	return result, errs
}

// Apply registers the compiled definitions. Stream types register first
// so Seal's cross-check over activity streams can pass. Apply does not
// seal: the embedding platform registers its code-side entity types,
// associations and authorizers afterwards.
func (d *Definitions) Apply(reg *registry.Registry) error {
	for _, s := range d.Streams {
		if err := reg.RegisterStreamType(s.Name, registry.StreamType{Transient: s.Transient}); err != nil {
			return err
		}
	}
	for _, a := range d.Activities {
		if err := reg.RegisterActivityType(a.Name, a.Spec); err != nil {
			return err
		}
	}
	return nil
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compile error to a LoadError with
// position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
