package zpool

import (
	"fmt"
	"strings"
)

// listColumns is the column order of `zpool list -Hp` output. Older
// zpool releases omit trailing columns (ckpoint arrived in 0.8);
// newer releases may append more. Rows must carry at least the columns
// through health; anything extra is preserved with a synthesized key.
var listColumns = []string{
	"name", "size", "alloc", "free", "ckpoint", "expandsz",
	"frag", "cap", "dedup", "health", "altroot",
}

// minColumns is the number of leading columns required for a row to be
// considered well-formed. Everything through health must be present.
const minColumns = 10

// Pool is one storage pool as reported by a single poll cycle. Fields
// preserve the column order of the source output. A Pool is never
// mutated after Parse returns it.
type Pool struct {
	Name   string
	Fields []Field
}

// Field is one reported pool attribute, key and raw value.
type Field struct {
	Key   string
	Value string
}

// Get returns the value for key and whether it was present.
func (p Pool) Get(key string) (string, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// ParseError reports pool status output that does not match the
// expected tabular schema. The failing line number is 1-based.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse zpool output line %d: %s", e.Line, e.Reason)
}

// Parse converts raw `zpool list -Hp` output into Pool records.
//
// Empty or whitespace-only input is valid and yields zero pools (no
// pools imported is a normal state, not an error). A row with fewer
// than the required columns yields a *ParseError and no pools. Columns
// beyond the known schema are preserved under synthesized keys
// (col12, col13, ...) so fields added by future zpool releases surface
// without a code change.
//
// Numeric normalization is minimal: values stay strings, but dedup
// ratios written with a locale comma decimal are rewritten with a dot,
// and a derived health_code field (see [HealthCode]) is appended after
// the textual health column.
func Parse(raw string) ([]Pool, error) {
	var pools []Pool

	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < minColumns {
			return nil, &ParseError{
				Line:   i + 1,
				Reason: fmt.Sprintf("expected at least %d tab-separated columns, got %d", minColumns, len(cols)),
			}
		}
		if cols[0] == "" {
			return nil, &ParseError{Line: i + 1, Reason: "empty pool name"}
		}

		pool := Pool{
			Name:   cols[0],
			Fields: make([]Field, 0, len(cols)+1),
		}
		for n, val := range cols[1:] {
			idx := n + 1
			key := fmt.Sprintf("col%d", idx+1)
			if idx < len(listColumns) {
				key = listColumns[idx]
			}
			pool.Fields = append(pool.Fields, Field{Key: key, Value: normalize(key, val)})
			if key == "health" {
				pool.Fields = append(pool.Fields, Field{
					Key:   "health_code",
					Value: fmt.Sprintf("%d", HealthCode(val)),
				})
			}
		}

		pools = append(pools, pool)
	}

	return pools, nil
}

// normalize rewrites locale-dependent number formatting in known
// numeric fields. Placeholder values ("-", "") pass through verbatim.
func normalize(key, val string) string {
	if val == "-" || val == "" {
		return val
	}
	if key == "dedup" {
		// Some locales render the ratio as "1,00" or suffix it with "x".
		val = strings.TrimSuffix(val, "x")
		val = strings.ReplaceAll(val, ",", ".")
	}
	return val
}
