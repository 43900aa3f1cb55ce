package subscription

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// seedLimit accepts either an integer or the word "unlimited".
type seedLimit int64

func (l *seedLimit) UnmarshalYAML(node *yaml.Node) error {
	if strings.EqualFold(strings.TrimSpace(node.Value), "unlimited") {
		*l = seedLimit(Unlimited)
		return nil
	}
	n, err := strconv.ParseInt(node.Value, 10, 64)
	if err != nil {
		return fmt.Errorf("line %d: limit must be an integer or \"unlimited\"", node.Line)
	}
	*l = seedLimit(n)
	return nil
}

type seedPlan struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	Tier        Tier     `yaml:"tier"`
	Price       int64    `yaml:"price"`
	Currency    string   `yaml:"currency"`
	Interval    Interval `yaml:"interval"`
	Active      *bool    `yaml:"active"`
	Features    []string `yaml:"features"`
	Limits      struct {
		MaxCards           seedLimit `yaml:"maxCards"`
		MaxTransactions    seedLimit `yaml:"maxTransactions"`
		Analytics          bool      `yaml:"analytics"`
		Export             bool      `yaml:"export"`
		PrioritySupport    bool      `yaml:"prioritySupport"`
		APIAccess          bool      `yaml:"apiAccess"`
		TeamManagement     bool      `yaml:"teamManagement"`
		CustomIntegrations bool      `yaml:"customIntegrations"`
	} `yaml:"limits"`
}

type seedFile struct {
	Plans []seedPlan `yaml:"plans"`
}

// LoadPlanSeed parses a YAML plan list:
//
//	plans:
//	  - name: pro_monthly
//	    displayName: Pro
//	    tier: pro
//	    price: 499
//	    currency: USD
//	    interval: month
//	    limits:
//	      maxCards: unlimited
//	      maxTransactions: unlimited
//	      analytics: true
func LoadPlanSeed(r io.Reader) ([]Plan, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidSeedFile, err)
	}

	plans := make([]Plan, 0, len(f.Plans))
	seen := make(map[string]bool, len(f.Plans))
	for i, sp := range f.Plans {
		if seen[sp.Name] {
			return nil, fmt.Errorf("%w: duplicate plan name %q", ErrInvalidSeedFile, sp.Name)
		}
		seen[sp.Name] = true

		p := Plan{
			Name:        sp.Name,
			DisplayName: sp.DisplayName,
			Tier:        sp.Tier,
			Price:       sp.Price,
			Currency:    strings.ToUpper(sp.Currency),
			Interval:    sp.Interval,
			Active:      sp.Active == nil || *sp.Active,
			Features:    sp.Features,
			Limits: Limits{
				MaxCards:           int64(sp.Limits.MaxCards),
				MaxTransactions:    int64(sp.Limits.MaxTransactions),
				Analytics:          sp.Limits.Analytics,
				Export:             sp.Limits.Export,
				PrioritySupport:    sp.Limits.PrioritySupport,
				APIAccess:          sp.Limits.APIAccess,
				TeamManagement:     sp.Limits.TeamManagement,
				CustomIntegrations: sp.Limits.CustomIntegrations,
			},
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		if p.Interval == "" {
			p.Interval = IntervalMonth
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: plan %d: %w", ErrInvalidSeedFile, i, err)
		}
		plans = append(plans, p)
	}
	return plans, nil
}
