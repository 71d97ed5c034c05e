package pool

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ice-blockchain/go-dsrouter"
)

const (
	hikariMaxLifetime = 30 * time.Minute
	hikariMaxIdleTime = 10 * time.Minute
)

// SQLProvider opens database/sql pools. The driver named by a descriptor
// must be registered by the program, e.g. by importing
// github.com/mattn/go-sqlite3.
type SQLProvider struct {
	// DSN builds a data source name for a descriptor. DefaultDSN is used if
	// nil.
	DSN func(d dsrouter.Descriptor) (string, error)
}

var _ Provider = (*SQLProvider)(nil)

func NewSQLProvider() *SQLProvider {
	return &SQLProvider{DSN: DefaultDSN}
}

// Open opens a pool and tunes it according to the provider kind of the
// descriptor.
func (p *SQLProvider) Open(ctx context.Context, d dsrouter.Descriptor) (DataSource, error) {
	if d.Conn.Driver == "" {
		return nil, &dsrouter.ConfigError{ID: d.ID, Msg: "driver is not set"}
	}
	tune, ok := tuners[d.Pool.Provider]
	if !ok {
		return nil, &dsrouter.ConfigError{ID: d.ID, Msg: fmt.Sprintf("unknown provider %q", d.Pool.Provider)}
	}

	dsnFunc := p.DSN
	if dsnFunc == nil {
		dsnFunc = DefaultDSN
	}
	dsn, err := dsnFunc(d)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Conn.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err = tune(ctx, db, d.Pool); err != nil {
		return nil, multierror.Append(err, db.Close()).ErrorOrNil()
	}
	return &sqlDataSource{db: db}, nil
}

type tuner func(ctx context.Context, db *sql.DB, params dsrouter.PoolParams) error

//nolint:gochecknoglobals
var tuners = map[dsrouter.ProviderKind]tuner{
	"":                      tuneHikari,
	dsrouter.ProviderHikari: tuneHikari,
	dsrouter.ProviderDruid:  tuneDruid,
}

// tuneHikari keeps connections short lived and opens them lazily.
func tuneHikari(_ context.Context, db *sql.DB, params dsrouter.PoolParams) error {
	db.SetMaxOpenConns(params.MaxActive)
	db.SetMaxIdleConns(max(params.MaxIdle, params.MinIdle))
	db.SetConnMaxLifetime(hikariMaxLifetime)
	db.SetConnMaxIdleTime(hikariMaxIdleTime)
	return nil
}

// tuneDruid opens MinIdle connections up front and keeps idle connections
// forever.
func tuneDruid(ctx context.Context, db *sql.DB, params dsrouter.PoolParams) error {
	db.SetMaxOpenConns(params.MaxActive)
	db.SetMaxIdleConns(max(params.MaxIdle, params.MinIdle))

	conns := make([]*sql.Conn, 0, params.MinIdle)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < params.MinIdle; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to open idle connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return nil
}

// DefaultDSN builds a data source name for sqlite3, mysql and postgres
// drivers. Options are appended as query parameters in key order.
func DefaultDSN(d dsrouter.Descriptor) (string, error) {
	c := d.Conn
	query := encodeOptions(c.Options)

	switch c.Driver {
	case "sqlite3", "sqlite":
		if c.Database == "" {
			return "", &dsrouter.ConfigError{ID: d.ID, Msg: "database is not set"}
		}
		dsn := c.Database
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			dsn = "file:" + dsn
		}
		if query != "" {
			dsn += "?" + query
		}
		return dsn, nil
	case "mysql":
		var b strings.Builder
		if c.User != "" {
			b.WriteString(c.User)
			if c.Password != "" {
				b.WriteString(":" + c.Password)
			}
			b.WriteString("@")
		}
		fmt.Fprintf(&b, "tcp(%s)/%s", hostPort(c.Host, c.Port), c.Database)
		if query != "" {
			b.WriteString("?" + query)
		}
		return b.String(), nil
	case "postgres", "pgx":
		u := url.URL{
			Scheme:   "postgres",
			Host:     hostPort(c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: query,
		}
		if c.User != "" {
			u.User = url.UserPassword(c.User, c.Password)
			if c.Password == "" {
				u.User = url.User(c.User)
			}
		}
		return u.String(), nil
	default:
		return "", &dsrouter.ConfigError{ID: d.ID, Msg: fmt.Sprintf("can't build DSN for driver %q", c.Driver)}
	}
}

func hostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func encodeOptions(options map[string]string) string {
	if len(options) == 0 {
		return ""
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(options[k]))
	}
	return strings.Join(parts, "&")
}

type sqlDataSource struct {
	db *sql.DB
}

func (s *sqlDataSource) Acquire(ctx context.Context) (Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{conn: conn}, nil
}

func (s *sqlDataSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlDataSource) Close() error {
	return s.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	ret := &Rows{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret.Values = append(ret.Values, values)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *sqlConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	res, err := c.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlConn) ExecBatch(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error) {
	prepared, err := c.conn.PrepareContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer prepared.Close()

	counts := make([]int64, 0, len(argsList))
	for _, args := range argsList {
		res, err := prepared.ExecContext(ctx, args...)
		if err != nil {
			return counts, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return counts, err
		}
		counts = append(counts, affected)
	}
	return counts, nil
}

func (c *sqlConn) Release() {
	_ = c.conn.Close()
}
