// Package geo picks the region a new database is created in.
package geo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RegionPolicy maps continent codes to regions. It is built once at startup
// and never mutated afterward.
type RegionPolicy struct {
	Default    string
	Continents map[string]string
}

// NewRegionPolicy builds a policy from a "CODE=region,CODE=region" table.
func NewRegionPolicy(defaultRegion, table string) (RegionPolicy, error) {
	if defaultRegion == "" {
		return RegionPolicy{}, fmt.Errorf("default region is required")
	}
	continents, err := ParseRegionMap(table)
	if err != nil {
		return RegionPolicy{}, err
	}
	return RegionPolicy{Default: defaultRegion, Continents: continents}, nil
}

// ParseRegionMap parses "EU=eu-west-1,OC=ap-southeast-2". Codes are upper-cased.
func ParseRegionMap(table string) (map[string]string, error) {
	m := make(map[string]string)
	for _, pair := range strings.Split(table, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, region, ok := strings.Cut(pair, "=")
		code = strings.ToUpper(strings.TrimSpace(code))
		region = strings.TrimSpace(region)
		if !ok || code == "" || region == "" {
			return nil, fmt.Errorf("invalid region mapping %q", pair)
		}
		m[code] = region
	}
	return m, nil
}

// Region returns the mapped region for code, or the default.
func (p RegionPolicy) Region(code string) string {
	if region, ok := p.Continents[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return region
	}
	return p.Default
}

// ContinentLookup resolves an IP address to a continent code.
type ContinentLookup interface {
	LookupContinent(ctx context.Context, ip string) (string, error)
}

// Selector applies a RegionPolicy to an optional client IP hint. Lookup
// failures degrade to the default region and are never returned.
type Selector struct {
	policy  RegionPolicy
	lookup  ContinentLookup
	timeout time.Duration
	logger  *slog.Logger
}

// NewSelector creates a selector. lookup may be nil, in which case every
// delivery gets the default region.
func NewSelector(policy RegionPolicy, lookup ContinentLookup, timeout time.Duration, logger *slog.Logger) *Selector {
	return &Selector{
		policy:  policy,
		lookup:  lookup,
		timeout: timeout,
		logger:  logger,
	}
}

// SelectRegion returns the region for hint (a client IP address).
func (s *Selector) SelectRegion(ctx context.Context, hint string) string {
	if hint == "" || s.lookup == nil {
		return s.policy.Default
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	code, err := s.lookup.LookupContinent(ctx, hint)
	if err != nil {
		s.logger.Warn("geolocation lookup failed, using default region",
			"error", err,
			"default_region", s.policy.Default,
		)
		return s.policy.Default
	}

	return s.policy.Region(code)
}
