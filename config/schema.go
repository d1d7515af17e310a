package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// validateSchema checks the raw document against the embedded CUE schema so
// unknown keys and mistyped values are reported before decoding.
func validateSchema(filename string, raw []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, raw)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("build config %s: %w", filename, err)
	}
	if err := def.Unify(value).Validate(); err != nil {
		return fmt.Errorf("config %s does not match schema: %w", filename, err)
	}
	return nil
}
