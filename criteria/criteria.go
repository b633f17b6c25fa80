// Package criteria resolves the sizing criteria accepted by the mesher into
// the mutually exclusive value or field representations the refinement
// engine consumes.
package criteria

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/soypat/sdfmesh"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// FieldActive is the value slot reported for a Field criterion. It is
// never a valid physical bound.
const FieldActive = -1.0

// DefaultKey is the mapping key holding the bound of unlabeled regions.
const DefaultKey = "default"

// Sizing is a resolved sizing criterion: a Constant, a Field or a Table.
type Sizing interface {
	sizing()
}

// Constant is a uniform bound. Zero means unconstrained.
type Constant float64

// Field is a bound that varies in space. It is invoked concurrently by the
// engine and must be a pure function of its argument.
type Field func(p r3.Vec) float64

// Table holds a bound per subdomain label. Labels and Values are parallel
// and keep the order the mapping was given in.
type Table struct {
	Default float64
	Labels  []int
	Values  []float64
}

func (Constant) sizing() {}
func (Field) sizing()    {}
func (Table) sizing()    {}

// Lookup returns the bound for a subdomain label, or the default for
// labels not in the table.
func (t Table) Lookup(label int) float64 {
	for i, l := range t.Labels {
		if l == label {
			return t.Values[i]
		}
	}
	return t.Default
}

// Min returns the smallest positive bound of the table, or 0 if every
// entry is unconstrained.
func (t Table) Min() float64 {
	lo := 0.0
	for _, v := range append([]float64{t.Default}, t.Values...) {
		if v > 0 && (lo == 0 || v < lo) {
			lo = v
		}
	}
	return lo
}

// Slots returns the engine boundary representation of s. A Constant fills
// the value slot. A Field sets the value slot to FieldActive and returns the
// field. A Table reports its default. A nil Sizing is unconstrained.
func Slots(s Sizing) (value float64, field Field) {
	switch s := s.(type) {
	case Constant:
		return float64(s), nil
	case Field:
		return FieldActive, s
	case Table:
		return s.Default, nil
	}
	return 0, nil
}

// At evaluates s at point p for engines that need a single number per
// point. Tables yield their default.
func At(s Sizing, p r3.Vec) float64 {
	v, f := Slots(s)
	if f != nil {
		return f(p)
	}
	return v
}

// Entry is one label to bound pair of an ordered Mapping.
type Entry struct {
	Key   string
	Value float64
}

// Mapping is a per-subdomain sizing given in insertion order. Keys are
// integer labels or DefaultKey.
type Mapping []Entry

func errf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sdfmesh.ErrResolution}, args...)...)
}

func checkBound(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return errf("sizing bound must be a non-negative number, got %g", v)
	}
	return nil
}

// Resolve determines the representation of a sizing criterion.
//   - nil resolves to Constant(0), unconstrained.
//   - numbers resolve to Constant. Negative numbers are rejected.
//   - Field and func(r3.Vec) float64 resolve to Field.
//   - Mapping, map[string]float64, map[int]float64 and yaml mapping nodes
//     resolve to Table. The DefaultKey entry becomes the table default.
//     Ordered inputs keep their order, Go maps are sorted by label.
//   - a Sizing resolves to itself.
//
// The argument is never modified.
func Resolve(v any) (Sizing, error) {
	switch v := v.(type) {
	case nil:
		return Constant(0), nil
	case Constant:
		if err := checkBound(float64(v)); err != nil {
			return nil, err
		}
		return v, nil
	case Field:
		if v == nil {
			return nil, errf("nil sizing field")
		}
		return v, nil
	case func(r3.Vec) float64:
		if v == nil {
			return nil, errf("nil sizing field")
		}
		return Field(v), nil
	case Table:
		return v, nil
	case Mapping:
		return resolveEntries(v, false)
	case []Entry:
		return resolveEntries(v, false)
	case map[string]float64:
		entries := make(Mapping, 0, len(v))
		for k, val := range v {
			entries = append(entries, Entry{Key: k, Value: val})
		}
		return resolveEntries(entries, true)
	case map[int]float64:
		entries := make(Mapping, 0, len(v))
		for k, val := range v {
			entries = append(entries, Entry{Key: strconv.Itoa(k), Value: val})
		}
		return resolveEntries(entries, true)
	case *yaml.Node:
		return resolveNode(v)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return constant(rv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return constant(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return constant(float64(rv.Uint()))
	}
	return nil, errf("unsupported sizing criterion of type %T", v)
}

func constant(f float64) (Sizing, error) {
	if err := checkBound(f); err != nil {
		return nil, err
	}
	return Constant(f), nil
}

func resolveEntries(entries []Entry, sorted bool) (Sizing, error) {
	t, err := tableFromEntries(entries)
	if err != nil {
		return nil, err
	}
	if sorted {
		sort.Sort(byLabel(t))
	}
	return t, nil
}

func tableFromEntries(entries []Entry) (Table, error) {
	t := Table{
		Labels: make([]int, 0, len(entries)),
		Values: make([]float64, 0, len(entries)),
	}
	seen := make(map[int]bool, len(entries))
	hasDefault := false
	for _, e := range entries {
		if err := checkBound(e.Value); err != nil {
			return Table{}, err
		}
		if e.Key == DefaultKey {
			if hasDefault {
				return Table{}, errf("duplicate %q entry", DefaultKey)
			}
			hasDefault = true
			t.Default = e.Value
			continue
		}
		label, err := strconv.Atoi(e.Key)
		if err != nil {
			return Table{}, errf("subdomain label %q is not an integer", e.Key)
		}
		if seen[label] {
			return Table{}, errf("duplicate subdomain label %d", label)
		}
		seen[label] = true
		t.Labels = append(t.Labels, label)
		t.Values = append(t.Values, e.Value)
	}
	return t, nil
}

type byLabel Table

func (t byLabel) Len() int           { return len(t.Labels) }
func (t byLabel) Less(i, j int) bool { return t.Labels[i] < t.Labels[j] }
func (t byLabel) Swap(i, j int) {
	t.Labels[i], t.Labels[j] = t.Labels[j], t.Labels[i]
	t.Values[i], t.Values[j] = t.Values[j], t.Values[i]
}

func resolveNode(n *yaml.Node) (Sizing, error) {
	if n == nil || n.Kind == 0 {
		return Constant(0), nil
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return Constant(0), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, errf("line %d: %v", n.Line, err)
		}
		return constant(f)
	case yaml.MappingNode:
		entries := make(Mapping, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var e Entry
			e.Key = n.Content[i].Value
			if err := n.Content[i+1].Decode(&e.Value); err != nil {
				return nil, errf("line %d: %v", n.Content[i+1].Line, err)
			}
			entries = append(entries, e)
		}
		return resolveEntries(entries, false)
	}
	return nil, errf("line %d: sizing must be a number or a mapping", n.Line)
}
