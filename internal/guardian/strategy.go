package guardian

import (
	"sort"
	"strings"
)

// maxSymbolsPerFile caps how many symbols a FileRecord carries.
const maxSymbolsPerFile = 10

// LanguageStrategy extracts symbol names from one language's source.
// Implementations return names in encounter order; filtering and capping
// happen in the registry.
type LanguageStrategy interface {
	LanguageID() string
	Symbols(path string, content []byte) ([]string, error)
}

// StrategyRegistry stores language-specific strategies plus a fallback.
type StrategyRegistry struct {
	strategies map[string]LanguageStrategy
	fallback   LanguageStrategy
}

// NewStrategyRegistry constructs an empty registry using fallback for unknown languages.
func NewStrategyRegistry(fallback LanguageStrategy) *StrategyRegistry {
	return &StrategyRegistry{
		strategies: make(map[string]LanguageStrategy),
		fallback:   fallback,
	}
}

// Register adds or replaces the strategy for a language.
func (r *StrategyRegistry) Register(strategy LanguageStrategy) {
	if r == nil || strategy == nil {
		return
	}
	r.strategies[strategy.LanguageID()] = strategy
}

// StrategyFor returns the strategy registered for a language, or the fallback.
func (r *StrategyRegistry) StrategyFor(languageID string) (LanguageStrategy, bool) {
	if r == nil {
		return nil, false
	}
	if strategy, ok := r.strategies[languageID]; ok {
		return strategy, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// LanguageIDs returns registered language IDs sorted lexicographically.
func (r *StrategyRegistry) LanguageIDs() []string {
	if r == nil || len(r.strategies) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultStrategyRegistry returns the built-in strategies: syntax trees where a
// grammar is available, ordered regular expressions elsewhere.
func DefaultStrategyRegistry() *StrategyRegistry {
	registry := NewStrategyRegistry(genericRegexStrategy)
	registry.Register(GoStrategy{})
	registry.Register(PythonStrategy{})
	registry.Register(TypeScriptStrategy{})
	registry.Register(RustStrategy{})
	for _, strategy := range builtinRegexStrategies {
		registry.Register(strategy)
	}
	return registry
}

// ExtractSymbols runs the strategy for languageID over content. Private names
// (leading underscore) are dropped, duplicates removed and the result capped.
func (r *StrategyRegistry) ExtractSymbols(languageID, path string, content []byte) ([]string, error) {
	strategy, ok := r.StrategyFor(languageID)
	if !ok {
		return nil, nil
	}
	raw, err := strategy.Symbols(path, content)
	if err != nil {
		return nil, err
	}
	return filterSymbols(raw), nil
}

func filterSymbols(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, min(len(raw), maxSymbolsPerFile))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" || strings.HasPrefix(name, "_") {
			continue
		}
		if _, ok := symbolStoplist[name]; ok {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == maxSymbolsPerFile {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Control-flow keywords that loose function patterns pick up.
var symbolStoplist = map[string]struct{}{
	"if":       {},
	"for":      {},
	"while":    {},
	"switch":   {},
	"catch":    {},
	"return":   {},
	"function": {},
}
