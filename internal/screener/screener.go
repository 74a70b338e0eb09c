package screener

import (
	"strings"

	"github.com/shopspring/decimal"

	"apy-alerts/internal/fetcher"
)

// MatchMode controls how the symbol allow-list is compared.
type MatchMode string

const (
	// MatchExact matches symbols by case-insensitive equality.
	MatchExact MatchMode = "exact"
	// MatchSubstring matches when the pool symbol contains an allow-list entry.
	MatchSubstring MatchMode = "substring"
)

// Options define the pool selection rules.
type Options struct {
	// PoolIDs is an exact-match allow-list. When non-empty it is the primary
	// selection rule, mirroring upstream pool identifiers verbatim.
	PoolIDs []string
	// Projects/Chains constrain the symbol path; empty means unconstrained.
	Projects []string
	Chains   []string
	// Symbols is the asset allow-list for the symbol path.
	Symbols     []string
	SymbolMatch MatchMode
}

// Screener selects target pools out of the full upstream list.
type Screener struct {
	opts     Options
	idSet    map[string]struct{}
	projects map[string]struct{}
	chains   map[string]struct{}
	symbols  []string
}

// New constructs a Screener from options.
func New(opts Options) *Screener {
	if opts.SymbolMatch == "" {
		opts.SymbolMatch = MatchExact
	}

	s := &Screener{
		opts:     opts,
		idSet:    make(map[string]struct{}, len(opts.PoolIDs)),
		projects: lowerSet(opts.Projects),
		chains:   lowerSet(opts.Chains),
		symbols:  make([]string, 0, len(opts.Symbols)),
	}
	for _, id := range opts.PoolIDs {
		s.idSet[id] = struct{}{}
	}
	for _, sym := range opts.Symbols {
		if trimmed := strings.ToUpper(strings.TrimSpace(sym)); trimmed != "" {
			s.symbols = append(s.symbols, trimmed)
		}
	}
	return s
}

// Filter returns the pools matching the configured rules, preserving input
// order, plus the configured pool ids that were not present upstream.
func (s *Screener) Filter(pools []fetcher.Pool) ([]fetcher.Pool, []string) {
	matched := make([]fetcher.Pool, 0, len(s.opts.PoolIDs)+len(s.symbols))
	seen := make(map[string]struct{}, len(s.idSet))

	for _, pool := range pools {
		if _, ok := s.idSet[pool.ID]; ok {
			seen[pool.ID] = struct{}{}
			matched = append(matched, pool)
			continue
		}
		if s.matchesSymbolPath(pool) {
			matched = append(matched, pool)
		}
	}

	missing := make([]string, 0)
	for _, id := range s.opts.PoolIDs {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}

	return matched, missing
}

func (s *Screener) matchesSymbolPath(pool fetcher.Pool) bool {
	if len(s.symbols) == 0 {
		return false
	}
	if len(s.projects) > 0 {
		if _, ok := s.projects[strings.ToLower(pool.Project)]; !ok {
			return false
		}
	}
	if len(s.chains) > 0 {
		if _, ok := s.chains[strings.ToLower(pool.Chain)]; !ok {
			return false
		}
	}

	symbol := strings.ToUpper(strings.TrimSpace(pool.Symbol))
	for _, want := range s.symbols {
		switch s.opts.SymbolMatch {
		case MatchSubstring:
			if strings.Contains(symbol, want) {
				return true
			}
		default:
			if symbol == want {
				return true
			}
		}
	}
	return false
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if trimmed := strings.ToLower(strings.TrimSpace(v)); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

// Result is a pool annotated with the threshold decision.
type Result struct {
	Pool           fetcher.Pool
	Threshold      decimal.Decimal
	AlertTriggered bool
}

// Evaluate annotates each pool with alert_triggered = (apy >= threshold).
// Pure: neither input is mutated.
func Evaluate(pools []fetcher.Pool, threshold decimal.Decimal) []Result {
	results := make([]Result, 0, len(pools))
	for _, pool := range pools {
		results = append(results, Result{
			Pool:           pool,
			Threshold:      threshold,
			AlertTriggered: pool.APY.GreaterThanOrEqual(threshold),
		})
	}
	return results
}
