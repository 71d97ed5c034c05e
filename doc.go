// Package dsrouter holds the datasource registry and the types shared by the
// routing packages: roles, routing modes, errors and log events.
//
// A typical setup registers one master and any number of slaves, opens a
// pool.RoutingPool over the registry and keeps the health flags up to date
// with a health.Poller:
//
//	registry := dsrouter.NewRegistry()
//	_ = registry.Register(dsrouter.Descriptor{ID: "m1", Role: dsrouter.MasterRole, Healthy: true})
//	_ = registry.Register(dsrouter.Descriptor{ID: "s1", Role: dsrouter.SlaveRole, Healthy: true})
//
//	connPool, err := pool.Connect(ctx, registry, pool.NewSQLProvider(), pool.Opts{})
//	rows, err := connPool.Read(ctx, "SELECT * FROM users")
package dsrouter
