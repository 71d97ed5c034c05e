package dsrouter

import (
	"fmt"
	"strings"
)

// Role describes a role of a datasource.
type Role uint32

const (
	UnknownRole Role = iota // The role is not set or can't be parsed.
	MasterRole              // The single writable datasource.
	SlaveRole               // A read-only replica of the master.
)

// String returns a lower case name of the role.
func (r Role) String() string {
	switch r {
	case MasterRole:
		return "master"
	case SlaveRole:
		return "slave"
	case UnknownRole:
		return "unknown"
	default:
		return fmt.Sprintf("Role(%d)", uint32(r))
	}
}

// ParseRole parses a role name. "primary" and "replica" are accepted as
// aliases for master and slave.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "master", "primary":
		return MasterRole, nil
	case "slave", "replica":
		return SlaveRole, nil
	}
	return UnknownRole, fmt.Errorf("unknown role %q", s)
}

/*
Default mode for each operation table:

	  Operation     Default mode
	------------- --------------
	| read        | PreferRO    |
	| write       | RW          |
	| batch write | RW          |
	| ping        | no default  |
*/
type Mode uint32

const (
	ANY      Mode = iota // The operation can be executed on any datasource (master or slave).
	RW                   // The operation can only be executed on master.
	RO                   // The operation can only be executed on a slave.
	PreferRW             // If there is one, otherwise fallback to a read only one (slave).
	PreferRO             // If there is one, otherwise fallback to a writeable one (master).
)

func (m Mode) String() string {
	switch m {
	case ANY:
		return "any"
	case RW:
		return "rw"
	case RO:
		return "ro"
	case PreferRW:
		return "prefer_rw"
	case PreferRO:
		return "prefer_ro"
	default:
		return fmt.Sprintf("Mode(%d)", uint32(m))
	}
}
