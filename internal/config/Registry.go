/*
This file contains the registry bootstrap file: the oracles the runner approves at startup,
the ETH/USD oracle, the allow-list and the pools to register.

Decimals are written as strings so that no value passes through a float. Oracles may only
reference oracles declared above them.
*/

package config

import (
	"errors"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/tfmm/internal/oracle"
	"github.com/elys-network/tfmm/internal/runner"
	"github.com/elys-network/tfmm/internal/types"
	"github.com/elys-network/tfmm/internal/utils"
)

const (
	OracleStatic        = "static"
	OracleCryptoCompare = "cryptocompare"
	OracleMultiHop      = "multihop"
	OracleComposite     = "composite"
)

var ErrInvalidRegistry = types.NewClassError(types.ErrConfiguration, "invalid registry file")

// Registry is the parsed bootstrap file.
type Registry struct {
	ETHUSDOracle   string        `yaml:"eth_usd_oracle"`
	AllowedCallers []string      `yaml:"allowed_callers"`
	Oracles        []OracleEntry `yaml:"oracles"`
	Pools          []PoolEntry   `yaml:"pools"`
}

// OracleEntry declares one oracle. Which fields apply depends on Type.
type OracleEntry struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`

	// static
	Price string `yaml:"price"`

	// cryptocompare
	Symbol string `yaml:"symbol"`
	Quote  string `yaml:"quote"`

	// multihop
	Hops []HopEntry `yaml:"hops"`

	// composite
	Constituents []string `yaml:"constituents"`
	Balances     []string `yaml:"balances"`
	TotalSupply  string   `yaml:"total_supply"`
}

type HopEntry struct {
	Oracle string `yaml:"oracle"`
	Invert bool   `yaml:"invert"`
}

// PoolEntry declares one pool registration.
type PoolEntry struct {
	Address           string           `yaml:"address"`
	Rule              string           `yaml:"rule"`
	Oracles           [][]string       `yaml:"oracles"`
	Lambdas           []string         `yaml:"lambdas"`
	EpsilonMax        string           `yaml:"epsilon_max"`
	AbsoluteGuardRail string           `yaml:"absolute_guard_rail"`
	UpdateInterval    int64            `yaml:"update_interval"`
	Parameters        []ParameterEntry `yaml:"parameters"`
	PoolManager       string           `yaml:"pool_manager"`
	InitialWeights    []string         `yaml:"initial_weights"`
	Seed              SeedEntry        `yaml:"seed"`
}

type ParameterEntry struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

type SeedEntry struct {
	MovingAverages      []string   `yaml:"moving_averages"`
	ShortMovingAverages []string   `yaml:"short_moving_averages"`
	Intermediates       []string   `yaml:"intermediates"`
	Covariance          [][]string `yaml:"covariance"`
}

// OracleOptions carries the process settings oracles are built with.
type OracleOptions struct {
	Clock              func() int64
	StalenessThreshold int64
	CryptoCompareURL   string
	CryptoCompareKey   string
}

// LoadRegistry reads and parses the registry file at path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry parses a registry document and checks its references.
func ParseRegistry(data []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	declared := make(map[string]bool, len(r.Oracles))
	for i, o := range r.Oracles {
		if o.ID == "" {
			return fmt.Errorf("%w: oracle %d has no id", ErrInvalidRegistry, i)
		}
		if declared[o.ID] {
			return fmt.Errorf("%w: oracle %s declared twice", ErrInvalidRegistry, o.ID)
		}
		var refs []string
		switch o.Type {
		case OracleStatic, OracleCryptoCompare:
		case OracleMultiHop:
			for _, h := range o.Hops {
				refs = append(refs, h.Oracle)
			}
		case OracleComposite:
			refs = o.Constituents
			if len(o.Balances) != len(o.Constituents) {
				return fmt.Errorf("%w: composite oracle %s has %d balances for %d constituents",
					ErrInvalidRegistry, o.ID, len(o.Balances), len(o.Constituents))
			}
		default:
			return fmt.Errorf("%w: oracle %s has unknown type %q", ErrInvalidRegistry, o.ID, o.Type)
		}
		for _, ref := range refs {
			if !declared[ref] {
				return fmt.Errorf("%w: oracle %s references %s before it is declared", ErrInvalidRegistry, o.ID, ref)
			}
		}
		declared[o.ID] = true
	}

	if r.ETHUSDOracle != "" && !declared[r.ETHUSDOracle] {
		return fmt.Errorf("%w: eth_usd_oracle %s is not declared", ErrInvalidRegistry, r.ETHUSDOracle)
	}
	for _, p := range r.Pools {
		for i, list := range p.Oracles {
			for _, id := range list {
				if !declared[id] {
					return fmt.Errorf("%w: pool %s asset %d uses undeclared oracle %s", ErrInvalidRegistry, p.Address, i, id)
				}
			}
		}
	}
	return nil
}

// BuildOracles constructs every declared oracle in declaration order.
func (r *Registry) BuildOracles(opts OracleOptions) ([]oracle.Oracle, error) {
	if opts.Clock == nil {
		return nil, errors.New("oracle options need a clock")
	}
	built := make(map[string]oracle.Oracle, len(r.Oracles))
	out := make([]oracle.Oracle, 0, len(r.Oracles))
	for _, entry := range r.Oracles {
		o, err := buildOracle(entry, built, opts)
		if err != nil {
			return nil, err
		}
		built[entry.ID] = o
		out = append(out, o)
	}
	return out, nil
}

func buildOracle(entry OracleEntry, built map[string]oracle.Oracle, opts OracleOptions) (oracle.Oracle, error) {
	switch entry.Type {
	case OracleStatic:
		price, err := utils.ParseDec(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: oracle %s price: %v", ErrInvalidRegistry, entry.ID, err)
		}
		// a LegacyDec is an integer scaled by 10^18
		answer := sdkmath.NewIntFromBigInt(price.BigInt())
		return oracle.NewDirect(entry.ID, oracle.NewPegFeed(answer, sdkmath.LegacyPrecision, opts.Clock)), nil

	case OracleCryptoCompare:
		feed, err := oracle.NewHTTPFeed(oracle.HTTPFeedConfig{
			BaseURL: opts.CryptoCompareURL,
			APIKey:  opts.CryptoCompareKey,
			Symbol:  CCID(entry.Symbol),
			Quote:   entry.Quote,
		})
		if err != nil {
			return nil, fmt.Errorf("oracle %s: %w", entry.ID, err)
		}
		return oracle.NewDirect(entry.ID, feed), nil

	case OracleMultiHop:
		hops := make([]oracle.Hop, len(entry.Hops))
		for i, h := range entry.Hops {
			hops[i] = oracle.Hop{Oracle: built[h.Oracle], Invert: h.Invert}
		}
		return oracle.NewMultiHop(entry.ID, hops)

	case OracleComposite:
		constituents := make([]oracle.Oracle, len(entry.Constituents))
		for i, id := range entry.Constituents {
			constituents[i] = built[id]
		}
		balances, err := parseDecs(entry.Balances)
		if err != nil {
			return nil, fmt.Errorf("%w: oracle %s balances: %v", ErrInvalidRegistry, entry.ID, err)
		}
		supply, err := utils.ParseDec(entry.TotalSupply)
		if err != nil {
			return nil, fmt.Errorf("%w: oracle %s total supply: %v", ErrInvalidRegistry, entry.ID, err)
		}
		return oracle.NewComposite(entry.ID, oracle.NewStaticPoolState(balances, supply), constituents,
			opts.StalenessThreshold, opts.Clock)

	default:
		return nil, fmt.Errorf("%w: oracle %s has unknown type %q", ErrInvalidRegistry, entry.ID, entry.Type)
	}
}

// AllowedCallerAddresses parses the allow-list.
func (r *Registry) AllowedCallerAddresses() ([]types.Address, error) {
	out := make([]types.Address, len(r.AllowedCallers))
	for i, s := range r.AllowedCallers {
		a, err := types.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Settings converts a pool declaration into the runner's registration input. Omitted guard
// rails and interval fall back to the defaults in Parameters.go.
func (p PoolEntry) Settings() (types.Address, runner.RuleSettings, error) {
	pool, err := types.ParseAddress(p.Address)
	if err != nil {
		return "", runner.RuleSettings{}, err
	}
	fail := func(field string, err error) (types.Address, runner.RuleSettings, error) {
		return "", runner.RuleSettings{}, fmt.Errorf("%w: pool %s %s: %v", ErrInvalidRegistry, pool, field, err)
	}

	settings := runner.RuleSettings{
		Rule:           p.Rule,
		Oracles:        p.Oracles,
		UpdateInterval: p.UpdateInterval,
	}
	if settings.UpdateInterval == 0 {
		settings.UpdateInterval = DefaultUpdateInterval
	}
	if settings.Lambdas, err = parseDecs(p.Lambdas); err != nil {
		return fail("lambdas", err)
	}
	if settings.EpsilonMax, err = utils.ParseDec(orDefault(p.EpsilonMax, DefaultEpsilonMax)); err != nil {
		return fail("epsilon_max", err)
	}
	if settings.AbsoluteGuardRail, err = utils.ParseDec(orDefault(p.AbsoluteGuardRail, DefaultAbsoluteGuardRail)); err != nil {
		return fail("absolute_guard_rail", err)
	}
	for _, row := range p.Parameters {
		values, err := parseDecs(row.Values)
		if err != nil {
			return fail("parameter "+row.Name, err)
		}
		settings.Parameters = append(settings.Parameters, types.ParameterRow{Name: row.Name, Values: values})
	}
	if p.PoolManager != "" {
		if settings.PoolManager, err = types.ParseAddress(p.PoolManager); err != nil {
			return fail("pool_manager", err)
		}
	}
	if settings.InitialWeights, err = parseDecs(p.InitialWeights); err != nil {
		return fail("initial_weights", err)
	}

	seed := &settings.Seed
	if seed.MovingAverages, err = parseDecs(p.Seed.MovingAverages); err != nil {
		return fail("seed moving_averages", err)
	}
	if seed.ShortMovingAverages, err = parseDecs(p.Seed.ShortMovingAverages); err != nil {
		return fail("seed short_moving_averages", err)
	}
	if seed.Intermediates, err = parseDecs(p.Seed.Intermediates); err != nil {
		return fail("seed intermediates", err)
	}
	for _, row := range p.Seed.Covariance {
		values, err := parseDecs(row)
		if err != nil {
			return fail("seed covariance", err)
		}
		seed.Covariance = append(seed.Covariance, values)
	}
	return pool, settings, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// parseDecs leaves omitted vectors nil so the runner applies its defaults.
func parseDecs(values []string) ([]sdkmath.LegacyDec, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return utils.ParseDecs(values)
}
