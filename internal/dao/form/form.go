// Package form provides editable field groups saved through a DAO. Field rules
// are CEL expressions evaluated against the field value and the whole form.
package form

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/dao/mapper"
	apperrors "firestore-dao/internal/shared/errors"
)

// ValidateTag holds the rules of a model field, separated by ';'.
//
//	Email string `firestore:"email" validate:"value.contains('@')"`
const ValidateTag = "validate"

// RequiredError is reported for a required control left empty.
const RequiredError = "required"

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

func ruleEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("value", cel.DynType),
			cel.Variable("form", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return env, envErr
}

// Rule is a compiled CEL expression yielding a bool.
type Rule struct {
	Expr    string
	program cel.Program
}

// CompileRule compiles expr. The expression sees `value`, the control value, and
// `form`, every value of the group.
func CompileRule(expr string) (*Rule, error) {
	e, err := ruleEnv()
	if err != nil {
		return nil, fmt.Errorf("CEL environment: %w", err)
	}
	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error in %q: %w", expr, issues.Err())
	}
	program, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &Rule{Expr: expr, program: program}, nil
}

// Check evaluates the rule. Evaluation errors and non boolean results fail the rule.
func (r *Rule) Check(value any, form map[string]any) bool {
	out, _, err := r.program.Eval(map[string]interface{}{
		"value": value,
		"form":  form,
	})
	if err != nil {
		return false
	}
	ok, isBool := out.Value().(bool)
	return isBool && ok
}

// Control is one field of a Group.
type Control struct {
	Name     string
	Initial  any
	Required bool
	Rules    []*Rule

	value any
	dirty bool
}

// Group is a set of controls implementing repository.Form.
type Group struct {
	mu       sync.RWMutex
	controls map[string]*Control
	order    []string
}

var _ repository.Form = (*Group)(nil)

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{controls: make(map[string]*Control)}
}

// Add registers a control holding initial and compiles its rules.
func (g *Group) Add(name string, initial any, required bool, rules ...string) error {
	c := &Control{Name: name, Initial: initial, Required: required, value: initial}
	for _, expr := range rules {
		expr = strings.TrimSpace(expr)
		if expr == "" {
			continue
		}
		rule, err := CompileRule(expr)
		if err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("invalid rule for %s", name)).WithCause(err)
		}
		c.Rules = append(c.Rules, rule)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.controls[name]; !exists {
		g.order = append(g.order, name)
	}
	g.controls[name] = c
	return nil
}

// Set changes a control value and marks the group as modified.
func (g *Group) Set(name string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.controls[name]
	if !ok {
		return apperrors.NewNotFoundError("control " + name)
	}
	c.value = value
	c.dirty = true
	return nil
}

// Get returns the current value of a control.
func (g *Group) Get(name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.controls[name]
	if !ok {
		return nil, false
	}
	return c.value, true
}

// Names returns the control names in registration order.
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Value implements repository.Form.
func (g *Group) Value() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.valueLocked()
}

func (g *Group) valueLocked() map[string]any {
	out := make(map[string]any, len(g.controls))
	for name, c := range g.controls {
		out[name] = c.value
	}
	return out
}

// Pristine implements repository.Form.
func (g *Group) Pristine() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, c := range g.controls {
		if c.dirty {
			return false
		}
	}
	return true
}

// MarkPristine keeps the current values and clears the modified state.
func (g *Group) MarkPristine() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.controls {
		c.dirty = false
	}
}

// Reset restores every initial value.
func (g *Group) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.controls {
		c.value = c.Initial
		c.dirty = false
	}
}

// Valid implements repository.Form.
func (g *Group) Valid() bool {
	return len(g.Errors()) == 0
}

// Errors implements repository.Form. Each failing control maps to the list of
// failed rules, RequiredError first. It is nil for a valid group.
func (g *Group) Errors() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	values := g.valueLocked()
	var errs map[string]any
	for _, name := range g.order {
		c := g.controls[name]
		var failed []string
		if c.Required && isEmpty(c.value) {
			failed = append(failed, RequiredError)
		} else if !isEmpty(c.value) {
			for _, rule := range c.Rules {
				if !rule.Check(c.value, values) {
					failed = append(failed, rule.Expr)
				}
			}
		}
		if len(failed) > 0 {
			if errs == nil {
				errs = make(map[string]any)
			}
			errs[name] = failed
		}
	}
	return errs
}

// FromModel builds a group with one control per mapped field of m, initialised
// from its current values. Rules come from the validate tag; required names the
// controls that must not be empty.
func FromModel(m any, required ...string) (*Group, error) {
	fields := mapper.Fields(m)
	if fields == nil {
		return nil, apperrors.NewMissingArgumentError("model")
	}
	raw := mapper.ToRaw(m)

	mandatory := make(map[string]bool, len(required))
	for _, name := range required {
		mandatory[name] = true
	}

	g := NewGroup()
	for _, f := range fields {
		var rules []string
		if tag := f.Tag.Get(ValidateTag); tag != "" {
			rules = strings.Split(tag, ";")
		}
		if err := g.Add(f.Name, raw[f.Name], mandatory[f.Name], rules...); err != nil {
			return nil, err
		}
		delete(mandatory, f.Name)
	}

	if len(mandatory) > 0 {
		unknown := make([]string, 0, len(mandatory))
		for name := range mandatory {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, apperrors.NewNotFoundError("controls " + strings.Join(unknown, ", "))
	}
	return g, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case time.Time:
		return val.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
