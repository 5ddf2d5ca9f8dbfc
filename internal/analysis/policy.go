package analysis

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Operation names one AI-backed analysis feature.
type Operation string

const (
	OpParseCV       Operation = "parse-cv"
	OpMatchJob      Operation = "match-job"
	OpCoverLetter   Operation = "cover-letter"
	OpDetectProfile Operation = "detect-profile"
	OpRewriteCV     Operation = "rewrite-cv"
)

// Operations lists every operation in display order.
var Operations = []Operation{OpParseCV, OpMatchJob, OpCoverLetter, OpDetectProfile, OpRewriteCV}

// ParseOperation resolves a name to a known operation.
func ParseOperation(name string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Operations {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", name)
}

// Policy bounds one operation: how often it may be called and how large the
// provider exchange may be.
type Policy struct {
	Limit           int           `json:"limit" mapstructure:"limit"`
	Window          time.Duration `json:"window" mapstructure:"window"`
	Deadline        time.Duration `json:"deadline" mapstructure:"deadline"`
	Temperature     float64       `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens int           `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxInputChars   int           `json:"max_input_chars" mapstructure:"max_input_chars"`
}

// PolicyOverride replaces the set fields of a default Policy.
type PolicyOverride struct {
	Limit           *int           `mapstructure:"limit"`
	Window          *time.Duration `mapstructure:"window"`
	Deadline        *time.Duration `mapstructure:"deadline"`
	Temperature     *float64       `mapstructure:"temperature"`
	MaxOutputTokens *int           `mapstructure:"max_output_tokens"`
	MaxInputChars   *int           `mapstructure:"max_input_chars"`
}

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() map[Operation]Policy {
	return map[Operation]Policy{
		OpParseCV:       {Limit: 20, Window: time.Hour, Deadline: 30 * time.Second, Temperature: 0.1, MaxOutputTokens: 2000, MaxInputChars: 15000},
		OpMatchJob:      {Limit: 15, Window: time.Hour, Deadline: 45 * time.Second, Temperature: 0.2, MaxOutputTokens: 2500, MaxInputChars: 12000},
		OpCoverLetter:   {Limit: 10, Window: time.Hour, Deadline: 60 * time.Second, Temperature: 0.7, MaxOutputTokens: 1500, MaxInputChars: 12000},
		OpDetectProfile: {Limit: 30, Window: time.Hour, Deadline: 15 * time.Second, Temperature: 0.0, MaxOutputTokens: 500, MaxInputChars: 6000},
		OpRewriteCV:     {Limit: 5, Window: time.Hour, Deadline: 90 * time.Second, Temperature: 0.5, MaxOutputTokens: 4000, MaxInputChars: 15000},
	}
}

// ResolvePolicies applies overrides keyed by operation name to the defaults.
func ResolvePolicies(overrides map[string]PolicyOverride) (map[Operation]Policy, error) {
	table := DefaultPolicies()
	for name, override := range overrides {
		op, err := ParseOperation(name)
		if err != nil {
			return nil, fmt.Errorf("operations.%s: %w", name, err)
		}
		policy := table[op]
		if override.Limit != nil {
			policy.Limit = *override.Limit
		}
		if override.Window != nil {
			policy.Window = *override.Window
		}
		if override.Deadline != nil {
			policy.Deadline = *override.Deadline
		}
		if override.Temperature != nil {
			policy.Temperature = *override.Temperature
		}
		if override.MaxOutputTokens != nil {
			policy.MaxOutputTokens = *override.MaxOutputTokens
		}
		if override.MaxInputChars != nil {
			policy.MaxInputChars = *override.MaxInputChars
		}
		if err := policy.validate(); err != nil {
			return nil, fmt.Errorf("operations.%s: %w", name, err)
		}
		table[op] = policy
	}
	return table, nil
}

func (p Policy) validate() error {
	switch {
	case p.Limit < 0:
		return fmt.Errorf("limit must not be negative")
	case p.Window <= 0:
		return fmt.Errorf("window must be positive")
	case p.Deadline <= 0:
		return fmt.Errorf("deadline must be positive")
	case p.Temperature < 0 || p.Temperature > 1:
		return fmt.Errorf("temperature must be within [0,1]")
	case p.MaxOutputTokens < 0 || p.MaxInputChars < 0:
		return fmt.Errorf("token and input bounds must not be negative")
	}
	return nil
}

// Policies holds the active policy table. Readers never block a Swap.
type Policies struct {
	table atomic.Pointer[map[Operation]Policy]
}

// NewPolicies starts from table, or the defaults when table is nil.
func NewPolicies(table map[Operation]Policy) *Policies {
	p := &Policies{}
	if table == nil {
		table = DefaultPolicies()
	}
	p.Swap(table)
	return p
}

// Get returns the policy for op.
func (p *Policies) Get(op Operation) (Policy, bool) {
	table := p.table.Load()
	if table == nil {
		policy, ok := DefaultPolicies()[op]
		return policy, ok
	}
	policy, ok := (*table)[op]
	return policy, ok
}

// Swap replaces the whole table.
func (p *Policies) Swap(table map[Operation]Policy) {
	cp := make(map[Operation]Policy, len(table))
	for op, policy := range table {
		cp[op] = policy
	}
	p.table.Store(&cp)
}

// PolicyEntry pairs an operation with its active policy.
type PolicyEntry struct {
	Operation Operation `json:"operation"`
	Policy
}

// All returns the active policies sorted by operation name.
func (p *Policies) All() []PolicyEntry {
	entries := make([]PolicyEntry, 0, len(Operations))
	for _, op := range Operations {
		if policy, ok := p.Get(op); ok {
			entries = append(entries, PolicyEntry{Operation: op, Policy: policy})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Operation < entries[j].Operation })
	return entries
}
