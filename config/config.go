// Package config loads a datasource topology from a yaml file and builds the
// registry and the options of the routing pool and the health poller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/balancer"
	"github.com/ice-blockchain/go-dsrouter/health"
	"github.com/ice-blockchain/go-dsrouter/pool"
)

const (
	DefaultAcquireTimeout = 30 * time.Second
	DefaultHealthInterval = 5 * time.Second
)

// Duration is a time.Duration written as a string, e.g. "1.5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level document.
type Config struct {
	DataSources []DataSource `yaml:"datasources"`
	Pool        Pool         `yaml:"pool"`
	Balancer    Balancer     `yaml:"balancer"`
	Health      Health       `yaml:"health"`
}

type Credentials struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DataSource describes one datasource. Pool overrides the limits of the
// top-level pool section.
type DataSource struct {
	ID          string            `yaml:"id"`
	Role        string            `yaml:"role"`
	Driver      string            `yaml:"driver"`
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	Database    string            `yaml:"database"`
	Credentials Credentials       `yaml:"credentials"`
	Options     map[string]string `yaml:"options"`
	Weight      string            `yaml:"weight"`
	Pool        *Pool             `yaml:"pool"`
}

type Pool struct {
	MaxActive      int      `yaml:"maxActive"`
	MaxIdle        int      `yaml:"maxIdle"`
	MinIdle        int      `yaml:"minIdle"`
	Provider       string   `yaml:"provider"`
	AcquireTimeout Duration `yaml:"acquireTimeout"`
}

type Balancer struct {
	Policy string `yaml:"policy"`
}

type Health struct {
	Enabled          bool     `yaml:"enabled"`
	Interval         Duration `yaml:"interval"`
	Timeout          Duration `yaml:"timeout"`
	FailureThreshold int      `yaml:"failureThreshold"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a config document. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &dsrouter.ConfigError{Msg: err.Error()}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = Duration(DefaultAcquireTimeout)
	}
	if c.Pool.Provider == "" {
		c.Pool.Provider = string(dsrouter.ProviderHikari)
	}
	if c.Balancer.Policy == "" {
		c.Balancer.Policy = string(balancer.RoundRobin)
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = Duration(DefaultHealthInterval)
	}
}

// Validate checks the document. The registry itself checks ids and roles
// when it is built.
func (c *Config) Validate() error {
	if len(c.DataSources) == 0 {
		return &dsrouter.ConfigError{Msg: dsrouter.ErrEmptyRegistry.Error()}
	}
	if _, err := balancer.New(balancer.Policy(c.Balancer.Policy)); err != nil {
		return err
	}
	if c.Pool.AcquireTimeout < 0 {
		return &dsrouter.ConfigError{Msg: pool.ErrWrongAcquireTimeout.Error()}
	}
	if err := validatePool("", c.Pool); err != nil {
		return err
	}

	masters := 0
	for _, ds := range c.DataSources {
		role, err := dsrouter.ParseRole(ds.Role)
		if err != nil {
			return &dsrouter.ConfigError{ID: ds.ID, Msg: err.Error()}
		}
		if role == dsrouter.MasterRole {
			masters++
		}
		if _, err := ds.weight(); err != nil {
			return err
		}
		if ds.Pool != nil {
			if err := validatePool(ds.ID, ds.pool(c.Pool)); err != nil {
				return err
			}
		}
	}
	if masters != 1 {
		return &dsrouter.ConfigError{Msg: fmt.Sprintf("exactly one master is required, got %d", masters)}
	}
	return nil
}

func validatePool(id string, p Pool) error {
	switch {
	case p.MaxActive < 0 || p.MaxIdle < 0 || p.MinIdle < 0:
		return &dsrouter.ConfigError{ID: id, Msg: "pool limits must not be negative"}
	case p.MaxActive > 0 && p.MinIdle > p.MaxActive:
		return &dsrouter.ConfigError{ID: id, Msg: "minIdle must not exceed maxActive"}
	}
	switch dsrouter.ProviderKind(strings.ToLower(p.Provider)) {
	case dsrouter.ProviderHikari, dsrouter.ProviderDruid:
		return nil
	default:
		return &dsrouter.ConfigError{ID: id, Msg: fmt.Sprintf("unknown provider %q", p.Provider)}
	}
}

func (ds DataSource) weight() (decimal.Decimal, error) {
	if ds.Weight == "" {
		return decimal.Zero, nil
	}
	weight, err := decimal.NewFromString(ds.Weight)
	if err != nil {
		return decimal.Zero, &dsrouter.ConfigError{ID: ds.ID, Msg: "invalid weight " + ds.Weight}
	}
	if weight.IsNegative() {
		return decimal.Zero, &dsrouter.ConfigError{ID: ds.ID, Msg: "weight must not be negative"}
	}
	return weight, nil
}

// pool merges the datasource pool section over the top-level one.
func (ds DataSource) pool(defaults Pool) Pool {
	if ds.Pool == nil {
		return defaults
	}
	p := *ds.Pool
	if p.MaxActive == 0 {
		p.MaxActive = defaults.MaxActive
	}
	if p.MaxIdle == 0 {
		p.MaxIdle = defaults.MaxIdle
	}
	if p.MinIdle == 0 {
		p.MinIdle = defaults.MinIdle
	}
	if p.Provider == "" {
		p.Provider = defaults.Provider
	}
	return p
}

// Descriptors converts datasources to descriptors. All datasources start
// healthy.
func (c *Config) Descriptors() ([]dsrouter.Descriptor, error) {
	ret := make([]dsrouter.Descriptor, 0, len(c.DataSources))
	for _, ds := range c.DataSources {
		role, err := dsrouter.ParseRole(ds.Role)
		if err != nil {
			return nil, &dsrouter.ConfigError{ID: ds.ID, Msg: err.Error()}
		}
		weight, err := ds.weight()
		if err != nil {
			return nil, err
		}
		p := ds.pool(c.Pool)

		ret = append(ret, dsrouter.Descriptor{
			ID:   ds.ID,
			Role: role,
			Conn: dsrouter.ConnectionParams{
				Driver:   ds.Driver,
				Host:     ds.Host,
				Port:     ds.Port,
				Database: ds.Database,
				User:     ds.Credentials.User,
				Password: ds.Credentials.Password,
				Options:  ds.Options,
			},
			Pool: dsrouter.PoolParams{
				MaxActive: p.MaxActive,
				MaxIdle:   p.MaxIdle,
				MinIdle:   p.MinIdle,
				Provider:  dsrouter.ProviderKind(strings.ToLower(p.Provider)),
			},
			Weight:  weight,
			Healthy: true,
		})
	}
	return ret, nil
}

// Registry builds a registry of all datasources.
func (c *Config) Registry() (*dsrouter.Registry, error) {
	descriptors, err := c.Descriptors()
	if err != nil {
		return nil, err
	}
	registry := dsrouter.NewRegistry()
	for _, d := range descriptors {
		if err := registry.Register(d); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// PoolOpts returns options of the routing pool. Logger and Metrics are left
// to the caller.
func (c *Config) PoolOpts() pool.Opts {
	return pool.Opts{
		AcquireTimeout: time.Duration(c.Pool.AcquireTimeout),
		Policy:         balancer.Policy(c.Balancer.Policy),
	}
}

// HealthOpts returns options of the health poller. The poller is used only
// if Health.Enabled is set.
func (c *Config) HealthOpts() health.Opts {
	return health.Opts{
		Interval:         time.Duration(c.Health.Interval),
		Timeout:          time.Duration(c.Health.Timeout),
		FailureThreshold: c.Health.FailureThreshold,
	}
}
