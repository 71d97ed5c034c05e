package dsrouter

import (
	"github.com/shopspring/decimal"
)

// ProviderKind names a tuning profile of the physical pool provider.
type ProviderKind string

const (
	ProviderHikari ProviderKind = "hikari"
	ProviderDruid  ProviderKind = "druid"
)

// ConnectionParams describes how to reach a datasource.
type ConnectionParams struct {
	// Driver is a database/sql driver name, e.g. "sqlite3".
	Driver   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// Options are appended to the DSN as query parameters.
	Options map[string]string
}

// PoolParams are limits of a physical connection pool.
type PoolParams struct {
	MaxActive int
	MaxIdle   int
	MinIdle   int
	Provider  ProviderKind
}

// Descriptor describes a datasource. Values returned by a Registry are
// snapshots; Healthy reflects the state at the moment of the call.
type Descriptor struct {
	ID   string
	Role Role
	Conn ConnectionParams
	Pool PoolParams
	// Weight is used by the weighted balancing policy. A zero weight means
	// the default weight.
	Weight  decimal.Decimal
	Healthy bool
}

// IsMaster reports whether the descriptor is the writable datasource.
func (d Descriptor) IsMaster() bool {
	return d.Role == MasterRole
}
