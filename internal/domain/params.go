package domain

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// ScenarioID is the enumerated identity of a cost scenario. It is stable
// across runs and independent of the human-readable label.
type ScenarioID string

// Scenario is a named transaction-cost assumption.
type Scenario struct {
	ID             ScenarioID `json:"id" yaml:"id"`
	Label          string     `json:"label" yaml:"label"`
	SpreadPips     float64    `json:"spread_pips" yaml:"spread_pips"`
	CommissionPips float64    `json:"commission_pips" yaml:"commission_pips"`
}

// CostPips returns the total per-unit cost of the scenario in pips.
func (s Scenario) CostPips() float64 { return s.SpreadPips + s.CommissionPips }

// Validate rejects empty identities and negative costs.
func (s Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario %q: empty id", s.Label)
	}
	if s.SpreadPips < 0 || s.CommissionPips < 0 {
		return fmt.Errorf("scenario %q: negative cost (spread=%g commission=%g)", s.ID, s.SpreadPips, s.CommissionPips)
	}
	return nil
}

// ScenarioIDFromLabel derives an identity slug from a display label:
// lowercase, runs of non-alphanumerics collapsed to '-'.
func ScenarioIDFromLabel(label string) ScenarioID {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return ScenarioID(strings.TrimSuffix(b.String(), "-"))
}

// ParameterSet is an immutable set of strategy parameters tagged with the
// cost scenario it runs under. The zero value is an empty set.
type ParameterSet struct {
	values   map[string]float64
	scenario Scenario
}

// NewParameterSet copies values so later mutation of the caller's map has no
// effect on the set.
func NewParameterSet(values map[string]float64, scenario Scenario) ParameterSet {
	return ParameterSet{values: maps.Clone(values), scenario: scenario}
}

// Get returns a parameter value and whether it is present.
func (p ParameterSet) Get(name string) (float64, bool) {
	v, ok := p.values[name]
	return v, ok
}

// GetOr returns the named parameter or def when absent.
func (p ParameterSet) GetOr(name string, def float64) float64 {
	if v, ok := p.values[name]; ok {
		return v
	}
	return def
}

// Names returns the parameter names in sorted order.
func (p ParameterSet) Names() []string {
	return slices.Sorted(maps.Keys(p.values))
}

// Values returns a copy of the parameter map.
func (p ParameterSet) Values() map[string]float64 {
	if p.values == nil {
		return map[string]float64{}
	}
	return maps.Clone(p.values)
}

// Scenario returns the cost scenario component.
func (p ParameterSet) Scenario() Scenario { return p.scenario }

// Clone returns a deep copy.
func (p ParameterSet) Clone() ParameterSet {
	return ParameterSet{values: maps.Clone(p.values), scenario: p.scenario}
}

// With returns a deep copy with overrides merged over the existing values.
func (p ParameterSet) With(overrides map[string]float64) ParameterSet {
	out := p.Clone()
	if out.values == nil {
		out.values = make(map[string]float64, len(overrides))
	}
	for k, v := range overrides {
		out.values[k] = v
	}
	return out
}

// WithScenario returns a deep copy running under scenario s.
func (p ParameterSet) WithScenario(s Scenario) ParameterSet {
	out := p.Clone()
	out.scenario = s
	return out
}

// Canonical renders the set as a tuple with a fixed field order (parameters
// sorted by name, then the scenario costs), so equal-valued sets always
// produce the same key. The scenario label is display-only and excluded.
func (p ParameterSet) Canonical() string {
	var b strings.Builder
	for i, name := range p.Names() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(p.values[name], 'g', -1, 64))
	}
	fmt.Fprintf(&b, "|scenario=%s;spread=%s;commission=%s",
		p.scenario.ID,
		strconv.FormatFloat(p.scenario.SpreadPips, 'g', -1, 64),
		strconv.FormatFloat(p.scenario.CommissionPips, 'g', -1, 64),
	)
	return b.String()
}
