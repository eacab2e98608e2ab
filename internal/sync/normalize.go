package sync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// underscorePrefix replaces a leading underscore on destination column
// names; many warehouses reject identifiers starting with "_".
const underscorePrefix = "hsh"

// SchemaHint carries the layout schema facts the normalizer needs.
type SchemaHint struct {
	// Repetitions maps a field name to its declared repetition count.
	// Fields absent from the map, or mapped to 0 or 1, are scalar.
	Repetitions map[string]int
}

// HintFromSchema extracts a SchemaHint from a layout schema.
func HintFromSchema(schema *endpoint.Schema) *SchemaHint {
	hint := &SchemaHint{Repetitions: make(map[string]int)}
	if schema == nil {
		return hint
	}
	for _, f := range schema.Fields {
		if f.Repetitions > 1 {
			hint.Repetitions[f.Name] = f.Repetitions
		}
	}
	return hint
}

// NormalizeName maps a source field name to its destination column name.
// Names starting with "_" get the hsh prefix; all other names pass through.
func NormalizeName(name string) string {
	if strings.HasPrefix(name, "_") {
		return underscorePrefix + name
	}
	return name
}

// RestoreName reverses NormalizeName, recovering the source field name.
func RestoreName(column string) string {
	if strings.HasPrefix(column, underscorePrefix+"_") {
		return strings.TrimPrefix(column, underscorePrefix)
	}
	return column
}

// HintFromColumns reconstructs a repetition hint from the destination
// columns of a previous run, for states written before schema caching.
// An indexed column pair like "Phone_1","Phone_2" restores to the source
// field "Phone" with the highest index as its repetition count.
func HintFromColumns(columns []string) *SchemaHint {
	hint := &SchemaHint{Repetitions: make(map[string]int)}
	for _, col := range columns {
		cut := strings.LastIndex(col, "_")
		if cut <= 0 {
			continue
		}
		index, err := strconv.Atoi(col[cut+1:])
		if err != nil || index < 1 {
			continue
		}
		source := RestoreName(col[:cut])
		if index > hint.Repetitions[source] {
			hint.Repetitions[source] = index
		}
	}
	for source, count := range hint.Repetitions {
		if count < 2 {
			delete(hint.Repetitions, source)
		}
	}
	return hint
}

// Normalize flattens a raw record into destination columns. Repeating
// fields expand to indexed columns, leading underscores are renamed, and
// a collision between two distinct source names is an error.
func Normalize(raw endpoint.Record, hint *SchemaHint) (endpoint.Record, error) {
	out := make(endpoint.Record, len(raw))
	sources := make(map[string]string, len(raw))

	put := func(source, column string, value any) error {
		if prev, exists := sources[column]; exists && prev != source {
			return core.NormalizeErrorf("fields %q and %q both normalize to column %q", prev, source, column)
		}
		sources[column] = source
		out[column] = value
		return nil
	}

	for key, value := range raw {
		// A repetition arrives as "Field(2)"; flatten to "Field_2".
		if base, index, ok := splitRepetition(key); ok {
			if err := put(key, fmt.Sprintf("%s_%d", NormalizeName(base), index), value); err != nil {
				return nil, err
			}
			continue
		}
		if err := put(key, NormalizeName(key), value); err != nil {
			return nil, err
		}
	}

	// Declared repetitions that never appeared still get their columns,
	// so every record of a table carries the same shape.
	if hint != nil {
		for field, count := range hint.Repetitions {
			for i := 1; i <= count; i++ {
				column := fmt.Sprintf("%s_%d", NormalizeName(field), i)
				if _, exists := out[column]; !exists {
					if err := put(fmt.Sprintf("%s(%d)", field, i), column, ""); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return out, nil
}

// splitRepetition recognizes "Name(N)" keys with N >= 1.
func splitRepetition(key string) (base string, index int, ok bool) {
	if !strings.HasSuffix(key, ")") {
		return "", 0, false
	}
	open := strings.LastIndexByte(key, '(')
	if open <= 0 {
		return "", 0, false
	}
	n := 0
	digits := key[open+1 : len(key)-1]
	if digits == "" {
		return "", 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return "", 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 1 {
		return "", 0, false
	}
	return key[:open], n, true
}
