package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError lists every schema violation found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks the configuration against the embedded CUE schema.
// Threshold ordering (must_cover >= optional >= watch, promote >= monitor)
// and value bounds are enforced there.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	data := ctx.Encode(c)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	err := def.Unify(data).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	verr := &ValidationError{}
	for _, e := range cueerrors.Errors(err) {
		verr.Problems = append(verr.Problems, strings.TrimSpace(cueerrors.Details(e, nil)))
	}
	return verr
}
