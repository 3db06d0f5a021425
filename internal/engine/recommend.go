package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/szarkamarci/modularai/internal/models"
)

// RuleEngine attaches rule-based restock recommendations to stockout alerts.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty attributes
// match everything.
type RuleMatch struct {
	Severity          string   `yaml:"severity"`
	Category          string   `yaml:"category"`
	NameContains      []string `yaml:"name_contains"`
	MaxStock          *int     `yaml:"max_stock"`
	BelowMinThreshold bool     `yaml:"below_min_threshold"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or the
// file does not exist, returns a nil engine, which recommends nothing.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend produces restock recommendations for an alert given the product
// it concerns. Rules fire when every set match attribute holds; duplicate
// recommendation texts across rules are collapsed.
func (e *RuleEngine) Recommend(alert models.Alert, product models.Product) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.Severity != "" && !strings.EqualFold(rule.Match.Severity, string(alert.Severity)) {
			continue
		}
		if rule.Match.Category != "" && !strings.EqualFold(rule.Match.Category, product.Category) {
			continue
		}
		if len(rule.Match.NameContains) > 0 && !nameContains(rule.Match.NameContains, product.Name) {
			continue
		}
		if rule.Match.MaxStock != nil && alert.StockAtRun > *rule.Match.MaxStock {
			continue
		}
		if rule.Match.BelowMinThreshold && alert.StockAtRun >= product.MinStockThreshold {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func nameContains(keywords []string, name string) bool {
	lowered := strings.ToLower(name)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
