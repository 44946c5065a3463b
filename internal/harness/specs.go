package harness

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/relmap/internal/compiler"
	"github.com/roach88/relmap/internal/record"
)

// LoadRecordSpecs compiles the record definitions of each CUE file and
// validates them. Later files may not redefine a record.
func LoadRecordSpecs(paths []string) (map[string]*record.Spec, error) {
	ctx := cuecontext.New()
	specs := make(map[string]*record.Spec)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read spec %s: %w", path, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		compiled, err := compiler.CompileRecords(v)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", path, err)
		}
		for _, spec := range compiled {
			if errs := compiler.Validate(spec); len(errs) > 0 {
				return nil, fmt.Errorf("%s: %w", path, errs[0])
			}
			if _, dup := specs[spec.Name]; dup {
				return nil, fmt.Errorf("%s: record %s defined twice", path, spec.Name)
			}
			specs[spec.Name] = spec
		}
	}
	return specs, nil
}
