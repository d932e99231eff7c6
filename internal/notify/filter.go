package notify

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Condition is one numeric comparison against an attribute value.
type Condition struct {
	Op    string // one of >, >=, <, <=, =
	Value float64
}

func (c Condition) holds(v float64) bool {
	switch c.Op {
	case ">":
		return v > c.Value
	case ">=":
		return v >= c.Value
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case "=":
		return v == c.Value
	}
	return false
}

func (c Condition) String() string {
	return c.Op + strconv.FormatFloat(c.Value, 'g', -1, 64)
}

// FilterPolicy maps an attribute to the conditions it must satisfy. An event
// matches when every listed attribute is present and meets all of its
// conditions. An empty policy matches everything.
type FilterPolicy map[string][]Condition

// Matches reports whether attrs satisfy the policy.
func (p FilterPolicy) Matches(attrs map[string]float64) bool {
	for name, conds := range p {
		v, ok := attrs[name]
		if !ok {
			return false
		}
		for _, c := range conds {
			if !c.holds(v) {
				return false
			}
		}
	}
	return true
}

// String renders the policy in the form ParseFilter reads, attributes sorted.
func (p FilterPolicy) String() string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)

	var terms []string
	for _, name := range names {
		for _, c := range p[name] {
			terms = append(terms, name+c.String())
		}
	}
	return strings.Join(terms, ",")
}

// ParseFilter reads a policy such as "count>40" or "count>=10,count<100".
// Terms are comma separated and joined with AND.
func ParseFilter(s string) (FilterPolicy, error) {
	policy := FilterPolicy{}
	for _, term := range strings.Split(s, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		i := strings.IndexAny(term, "<>=")
		if i <= 0 {
			return nil, fmt.Errorf("filter term %q: want <attribute><op><number>", term)
		}
		name := strings.TrimSpace(term[:i])
		rest := term[i:]

		op := rest[:1]
		if len(rest) > 1 && rest[1] == '=' && op != "=" {
			op = rest[:2]
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rest[len(op):]), 64)
		if err != nil {
			return nil, fmt.Errorf("filter term %q: %w", term, err)
		}
		policy[name] = append(policy[name], Condition{Op: op, Value: value})
	}
	return policy, nil
}

// Class is a named subscriber group with its filter.
type Class struct {
	Name   string
	Policy FilterPolicy
}

// DefaultClasses splits subscribers at threshold: count > threshold and
// count <= threshold.
func DefaultClasses(threshold float64) []Class {
	return []Class{
		{Name: "high-stock", Policy: FilterPolicy{AttrCount: {{Op: ">", Value: threshold}}}},
		{Name: "low-stock", Policy: FilterPolicy{AttrCount: {{Op: "<=", Value: threshold}}}},
	}
}

// ParseClasses reads subscriber classes such as
// "high-stock:count>40;low-stock:count<=40". Classes are separated by ';'
// and each is <name>:<policy> in the form ParseFilter reads. An empty s
// yields DefaultClasses(threshold).
func ParseClasses(s string, threshold float64) ([]Class, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultClasses(threshold), nil
	}
	var classes []Class
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, filter, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("subscriber class %q: want <name>:<filter>", part)
		}
		if _, dup := ClassByName(classes, name); dup {
			return nil, fmt.Errorf("subscriber class %q listed twice", name)
		}
		policy, err := ParseFilter(filter)
		if err != nil {
			return nil, fmt.Errorf("subscriber class %q: %w", name, err)
		}
		classes = append(classes, Class{Name: name, Policy: policy})
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("no subscriber classes in %q", s)
	}
	return classes, nil
}

// ClassByName finds one of classes by name.
func ClassByName(classes []Class, name string) (Class, bool) {
	for _, c := range classes {
		if c.Name == name {
			return c, true
		}
	}
	return Class{}, false
}
