package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrUnknownModel is returned when a model identifier has no registry entry.
var ErrUnknownModel = errors.New("unknown model")

// ErrUnknownUnit is returned when a flat-cost unit kind has no registry entry.
var ErrUnknownUnit = errors.New("unknown unit kind")

// ProviderKind identifies the upstream provider family of a model.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "OPENAI"
	ProviderAnthropic ProviderKind = "ANTHROPIC"
	ProviderGoogle    ProviderKind = "GOOGLE"
)

// Mode is the abstract quality/latency tier requested by callers.
type Mode string

const (
	ModeLow    Mode = "low"
	ModeMedium Mode = "medium"
	ModeHigh   Mode = "high"
)

// AllModes lists every mode from cheapest to most expensive.
var AllModes = []Mode{ModeLow, ModeMedium, ModeHigh}

// ParseMode normalizes a user-supplied mode. Empty selects medium.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeMedium, nil
	case ModeLow, ModeMedium, ModeHigh:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q (want low, medium or high)", s)
}

// ModelDescriptor describes a registered model and its pricing.
// Rates are credits per 1,000 tokens with the platform margin already applied.
type ModelDescriptor struct {
	ID            string
	Provider      ProviderKind
	DisplayName   string
	Description   string
	UpstreamModel string
	Modes         []Mode
	InputRate     decimal.Decimal
	OutputRate    decimal.Decimal
}

// Supports reports whether the model accepts the given mode.
func (d ModelDescriptor) Supports(mode Mode) bool {
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// UnitKind identifies a non-token billable unit.
type UnitKind string

const (
	UnitImage  UnitKind = "image"
	UnitSearch UnitKind = "search"
)

// FlatRate is the credit cost of a single non-token unit.
type FlatRate struct {
	Unit    UnitKind
	Tier    string
	Credits int64
}

// Registry is an immutable lookup table of model descriptors and flat rates.
// It has no mutation methods; build a new one to change pricing.
type Registry struct {
	models      map[string]ModelDescriptor
	flat        map[UnitKind]map[string]int64
	defaultTier map[UnitKind]string
}

// MinRate is the smallest non-zero token rate, in credits per 1K tokens.
// Below it a single token rounds to zero USD at six decimal places and is
// never billed.
var MinRate = decimal.RequireFromString("0.05")

// New builds a registry from the given descriptors and flat rates.
// Duplicate identifiers, negative rates and non-zero rates below MinRate
// are rejected.
func New(models []ModelDescriptor, flat []FlatRate) (*Registry, error) {
	r := &Registry{
		models:      make(map[string]ModelDescriptor, len(models)),
		flat:        make(map[UnitKind]map[string]int64),
		defaultTier: make(map[UnitKind]string),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model descriptor without id")
		}
		if _, ok := r.models[m.ID]; ok {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}
		if m.InputRate.IsNegative() || m.OutputRate.IsNegative() {
			return nil, fmt.Errorf("model %q has a negative rate", m.ID)
		}
		if belowMinRate(m.InputRate) || belowMinRate(m.OutputRate) {
			return nil, fmt.Errorf("model %q has a rate below %s credits per 1K tokens", m.ID, MinRate)
		}
		if m.UpstreamModel == "" {
			m.UpstreamModel = m.ID
		}
		m.Modes = append([]Mode(nil), m.Modes...)
		r.models[m.ID] = m
	}
	for _, f := range flat {
		if f.Credits < 0 {
			return nil, fmt.Errorf("flat rate %s/%s is negative", f.Unit, f.Tier)
		}
		tiers, ok := r.flat[f.Unit]
		if !ok {
			tiers = make(map[string]int64)
			r.flat[f.Unit] = tiers
			// first tier listed for a unit is its fallback
			r.defaultTier[f.Unit] = f.Tier
		}
		tiers[f.Tier] = f.Credits
	}
	return r, nil
}

// Resolve returns the descriptor for an exact, case-sensitive model id.
func (r *Registry) Resolve(id string) (ModelDescriptor, error) {
	m, ok := r.models[id]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	out := m
	out.Modes = append([]Mode(nil), m.Modes...)
	return out, nil
}

// RateFor projects the input and output rates of a model.
func (r *Registry) RateFor(id string) (decimal.Decimal, decimal.Decimal, error) {
	m, ok := r.models[id]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m.InputRate, m.OutputRate, nil
}

// FlatCost returns the credit cost for one unit of the given kind and tier.
// Unknown tiers fall back to the unit's default tier.
func (r *Registry) FlatCost(unit UnitKind, tier string) (int64, error) {
	tiers, ok := r.flat[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	if credits, ok := tiers[tier]; ok {
		return credits, nil
	}
	return tiers[r.defaultTier[unit]], nil
}

// All returns every descriptor sorted by id.
func (r *Registry) All() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FlatRates returns the flat-unit table sorted by unit and tier.
func (r *Registry) FlatRates() []FlatRate {
	var out []FlatRate
	for unit, tiers := range r.flat {
		for tier, credits := range tiers {
			out = append(out, FlatRate{Unit: unit, Tier: tier, Credits: credits})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit < out[j].Unit
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry built from the reference table.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := New(defaultModels(), defaultFlatRates())
		if err != nil {
			panic(fmt.Sprintf("registry: invalid built-in table: %v", err))
		}
		defaultReg = reg
	})
	return defaultReg
}

func belowMinRate(rate decimal.Decimal) bool {
	return rate.IsPositive() && rate.LessThan(MinRate)
}
