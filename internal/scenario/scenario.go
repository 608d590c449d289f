// Package scenario describes worlds and queries as YAML documents. It backs
// the sekai command and the fixtures of tests that want data instead of
// code.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/edwinsyarief/sekai"
)

// Scenario is a world plus the queries to run against it.
type Scenario struct {
	// Name identifies the scenario in output.
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Components are created before any entity, in order, so traits are in
	// place before the first table uses them.
	Components []ComponentSpec `yaml:"components,omitempty"`

	// Entities are named by dot separated paths. Parents are created as
	// needed and linked with ChildOf.
	Entities []EntitySpec `yaml:"entities"`

	Queries []QuerySpec `yaml:"queries,omitempty"`
}

// ComponentSpec declares a component, tag or relationship.
//
// A component with Fields gets a struct type whose fields are named after
// them (first letter upper cased). A field is "name" or "name:kind" with
// kind one of f32, f64, i32, i64; f64 is the default. A component with only
// Size gets an opaque type of that size. A component with neither is a tag.
type ComponentSpec struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields,omitempty"`
	Size   int      `yaml:"size,omitempty"`
	Align  int      `yaml:"align,omitempty"`
	// Traits are builtin tags added to the component, e.g. CanToggle,
	// Traversable, Exclusive, DontInherit.
	Traits []string `yaml:"traits,omitempty"`
}

// EntitySpec declares an entity and its ids. An id is an entity path or a
// pair written "(First, Second)".
type EntitySpec struct {
	Name string   `yaml:"name"`
	IDs  []string `yaml:"ids,omitempty"`
	// Set assigns field values, keyed by component then field. The
	// component is added when missing.
	Set map[string]map[string]float64 `yaml:"set,omitempty"`
	// Disable toggles components off. They need the CanToggle trait.
	Disable []string `yaml:"disable,omitempty"`
}

// QuerySpec declares a query.
type QuerySpec struct {
	Name  string     `yaml:"name"`
	Terms []TermSpec `yaml:"terms"`
	// Cache is default, none, auto or all.
	Cache string `yaml:"cache,omitempty"`
	// Flags are prefab, disabled and empty.
	Flags []string `yaml:"flags,omitempty"`
	// Vars presets variables to entity paths before iterating.
	Vars map[string]string `yaml:"vars,omitempty"`
}

// TermSpec declares a query term. References are entity paths, "$name"
// variables, "*" (wildcard) and "_" (any).
type TermSpec struct {
	ID  string `yaml:"id"`
	Src string `yaml:"src,omitempty"`
	// Oper is and, or, not, optional, andfrom, orfrom or notfrom.
	Oper string `yaml:"oper,omitempty"`
	// Traverse is self, up or selfup.
	Traverse string `yaml:"traverse,omitempty"`
	// Trav is the relationship traversed by up, IsA when empty.
	Trav  string `yaml:"trav,omitempty"`
	InOut string `yaml:"inout,omitempty"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validate(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	seen := make(map[string]bool)
	for i, c := range s.Components {
		if c.Name == "" {
			return fmt.Errorf("components[%d]: name is required", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("components[%d]: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true
		if len(c.Fields) > 0 && c.Size > 0 {
			return fmt.Errorf("components[%d]: fields and size are exclusive", i)
		}
		if c.Size < 0 || c.Align < 0 {
			return fmt.Errorf("components[%d]: negative size or align", i)
		}
		if _, err := structType(c.Fields); err != nil {
			return fmt.Errorf("components[%d]: %w", i, err)
		}
	}
	for i, e := range s.Entities {
		if e.Name == "" {
			return fmt.Errorf("entities[%d]: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("entities[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		for j, id := range e.IDs {
			if _, _, err := splitID(id); err != nil {
				return fmt.Errorf("entities[%d].ids[%d]: %w", i, j, err)
			}
		}
	}
	queries := make(map[string]bool)
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if queries[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		queries[q.Name] = true
		if len(q.Terms) == 0 {
			return fmt.Errorf("queries[%d]: terms list is required and must be non-empty", i)
		}
		if _, err := sekai.ParseCacheKind(q.Cache); err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
		if _, err := parseFlags(q.Flags); err != nil {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
		for j, t := range q.Terms {
			if err := validateTerm(t); err != nil {
				return fmt.Errorf("queries[%d].terms[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

func validateTerm(t TermSpec) error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, _, err := splitID(t.ID); err != nil {
		return err
	}
	if _, err := parseOper(t.Oper); err != nil {
		return err
	}
	if _, err := parseInOut(t.InOut); err != nil {
		return err
	}
	switch t.Traverse {
	case "", "self", "up", "selfup":
	default:
		return fmt.Errorf("unknown traverse %q", t.Traverse)
	}
	if t.Trav != "" && t.Traverse != "up" && t.Traverse != "selfup" {
		return fmt.Errorf("trav needs traverse up or selfup")
	}
	return nil
}

// splitID splits "(A, B)" into its elements. Plain ids return an empty
// second element.
func splitID(s string) (first, second string, err error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(") {
		if s == "" || strings.ContainsAny(s, "(),") {
			return "", "", fmt.Errorf("malformed id %q", s)
		}
		return s, "", nil
	}
	inner, ok := strings.CutSuffix(s[1:], ")")
	if !ok {
		return "", "", fmt.Errorf("unterminated pair %q", s)
	}
	first, second, ok = strings.Cut(inner, ",")
	first, second = strings.TrimSpace(first), strings.TrimSpace(second)
	if !ok || first == "" || second == "" || strings.ContainsAny(second, "(),") {
		return "", "", fmt.Errorf("malformed pair %q", s)
	}
	return first, second, nil
}

func parseOper(s string) (sekai.Oper, error) {
	if s == "" {
		return sekai.And, nil
	}
	for o := sekai.And; o <= sekai.NotFrom; o++ {
		if strings.EqualFold(o.String(), s) {
			return o, nil
		}
	}
	return sekai.And, fmt.Errorf("unknown oper %q", s)
}

func parseInOut(s string) (sekai.InOutKind, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return sekai.InOutDefault, nil
	case "inout":
		return sekai.InOut, nil
	case "in":
		return sekai.In, nil
	case "out":
		return sekai.Out, nil
	case "none":
		return sekai.InOutNone, nil
	}
	return sekai.InOutDefault, fmt.Errorf("unknown inout %q", s)
}

func parseFlags(flags []string) (sekai.QueryFlags, error) {
	var out sekai.QueryFlags
	for _, f := range flags {
		switch strings.ToLower(f) {
		case "prefab":
			out |= sekai.MatchPrefab
		case "disabled":
			out |= sekai.MatchDisabled
		case "empty":
			out |= sekai.MatchEmptyTables
		default:
			return 0, fmt.Errorf("unknown query flag %q", f)
		}
	}
	return out, nil
}

var fieldKinds = map[string]reflect.Type{
	"f32": reflect.TypeFor[float32](),
	"f64": reflect.TypeFor[float64](),
	"i32": reflect.TypeFor[int32](),
	"i64": reflect.TypeFor[int64](),
}

// structType builds the Go type of a component with fields. It returns nil
// for an empty field list.
func structType(fields []string) (reflect.Type, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	sf := make([]reflect.StructField, 0, len(fields))
	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		name, kind, _ := strings.Cut(f, ":")
		if kind == "" {
			kind = "f64"
		}
		typ, ok := fieldKinds[kind]
		if !ok {
			return nil, fmt.Errorf("field %q: unknown kind %q", name, kind)
		}
		goName := exportName(name)
		if goName == "" {
			return nil, fmt.Errorf("field %q: not an identifier", name)
		}
		if names[goName] {
			return nil, fmt.Errorf("duplicate field %q", name)
		}
		names[goName] = true
		sf = append(sf, reflect.StructField{Name: goName, Type: typ})
	}
	return reflect.StructOf(sf), nil
}

func exportName(name string) string {
	if name == "" {
		return ""
	}
	for i, r := range name {
		if !unicode.IsLetter(r) && r != '_' && (i == 0 || !unicode.IsDigit(r)) {
			return ""
		}
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	if !unicode.IsUpper(r[0]) {
		return ""
	}
	return string(r)
}
