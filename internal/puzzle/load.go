package puzzle

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Format is the encoding of a definition file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatForPath picks a format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported definition file %q (want .json, .yaml, .yml or .cue)", path)
	}
}

// LoadFile reads, schema-checks and normalizes a definition file.
func LoadFile(path string) (Definition, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Definition{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read definition: %w", err)
	}
	return Load(data, format, path)
}

// Load schema-checks and normalizes definition source. The filename is
// only used for error positions.
//
// Every format goes through the embedded CUE schema (#Puzzle), so unknown
// fields and wrongly typed values are rejected the same way regardless of
// how the definition was authored.
func Load(data []byte, format Format, filename string) (Definition, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Definition{}, fmt.Errorf("compile puzzle schema: %w", err)
	}
	puzzleSchema := schema.LookupPath(cue.ParsePath("#Puzzle"))

	var value cue.Value
	switch format {
	case FormatJSON, FormatCUE:
		// JSON is a subset of CUE.
		value = ctx.CompileBytes(data, cue.Filename(filename))
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Definition{}, &ValidationError{Message: fmt.Sprintf("parse yaml: %v", err)}
		}
		if doc == nil {
			doc = map[string]any{}
		}
		value = ctx.Encode(doc)
	default:
		return Definition{}, fmt.Errorf("unsupported format %q", format)
	}
	if err := value.Err(); err != nil {
		return Definition{}, formatCUEError(err)
	}

	unified := puzzleSchema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Definition{}, formatCUEError(err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return Definition{}, formatCUEError(err)
	}
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	return Normalize(in), nil
}

// formatCUEError keeps the first error and its source line.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	verr := &ValidationError{Message: first.Error()}
	if path := first.Path(); len(path) > 0 {
		verr.Field = strings.Join(path, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 && positions[0].IsValid() {
		verr.Line = positions[0].Line()
	}
	return verr
}
