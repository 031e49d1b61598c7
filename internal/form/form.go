package form

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Rule validates a single field value.
type Rule struct {
	Check   func(value any) bool
	Message string
}

// Form holds controlled field state with per-field validation.
type Form struct {
	mu       sync.RWMutex
	initial  map[string]any
	values   map[string]any
	rules    map[string]Rule
	messages map[string]string
}

// New constructs a form from initial values and optional rules.
func New(initial map[string]any, rules map[string]Rule) *Form {
	f := &Form{
		initial:  copyValues(initial),
		values:   copyValues(initial),
		rules:    make(map[string]Rule, len(rules)),
		messages: make(map[string]string, len(rules)),
	}
	for name, rule := range rules {
		f.rules[name] = rule
	}
	f.validate()
	return f
}

// Change updates one field and re-evaluates validation.
func (f *Form) Change(name string, value any) {
	if f == nil || name == "" {
		return
	}
	f.mu.Lock()
	f.values[name] = value
	f.validate()
	f.mu.Unlock()
}

// ChangeAll applies a batch of field changes. Unknown fields are kept as-is.
func (f *Form) ChangeAll(values map[string]any) {
	if f == nil {
		return
	}
	f.mu.Lock()
	for name, value := range values {
		if name == "" {
			continue
		}
		f.values[name] = value
	}
	f.validate()
	f.mu.Unlock()
}

// Reset restores the initial values.
func (f *Form) Reset() {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.values = copyValues(f.initial)
	f.validate()
	f.mu.Unlock()
}

// Values returns a copy of the current values.
func (f *Form) Values() map[string]any {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return copyValues(f.values)
}

// Value returns the current value of a field.
func (f *Form) Value(name string) any {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[name]
}

// String returns the current value of a field as a trimmed string.
func (f *Form) String(name string) string {
	return asString(f.Value(name))
}

// Message returns the validation message for a field, empty when valid.
func (f *Form) Message(name string) string {
	if f == nil {
		return ""
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.messages[name]
}

// Messages returns all current validation messages keyed by field.
func (f *Form) Messages() map[string]string {
	if f == nil {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.messages))
	for name, msg := range f.messages {
		if msg != "" {
			out[name] = msg
		}
	}
	return out
}

// FirstMessage returns the first failing message in field name order.
func (f *Form) FirstMessage() string {
	messages := f.Messages()
	if len(messages) == 0 {
		return ""
	}
	names := make([]string, 0, len(messages))
	for name := range messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return messages[names[0]]
}

// Valid reports whether every rule-bearing field passes its rule.
func (f *Form) Valid() bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, msg := range f.messages {
		if msg != "" {
			return false
		}
	}
	return true
}

func (f *Form) validate() {
	for name, rule := range f.rules {
		if rule.Check == nil || rule.Check(f.values[name]) {
			f.messages[name] = ""
			continue
		}
		f.messages[name] = rule.Message
	}
}

func copyValues(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

func asString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
