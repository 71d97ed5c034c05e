package test_helpers

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/pool"
)

type ReadOnInstanceArgs struct {
	ConnPool        pool.Pooler
	ReadsNumber     int
	ExpectedSources map[string]bool
}

type CheckStatusesArgs struct {
	ConnPool           *pool.RoutingPool
	Servers            []string
	Mode               dsrouter.Mode
	ExpectedPoolStatus bool
	ExpectedStatuses   map[string]bool
}

// NewRegistry creates a registry of healthy datasources: a master and the
// slaves.
func NewRegistry(t testing.TB, master string, slaves ...string) *dsrouter.Registry {
	t.Helper()

	registry := dsrouter.NewRegistry()
	if err := registry.Register(dsrouter.Descriptor{
		ID:      master,
		Role:    dsrouter.MasterRole,
		Healthy: true,
	}); err != nil {
		t.Fatalf("failed to register master: %s", err)
	}
	for _, slave := range slaves {
		if err := registry.Register(dsrouter.Descriptor{
			ID:      slave,
			Role:    dsrouter.SlaveRole,
			Healthy: true,
		}); err != nil {
			t.Fatalf("failed to register slave: %s", err)
		}
	}
	return registry
}

func CheckPoolStatuses(args interface{}) error {
	checkArgs, ok := args.(CheckStatusesArgs)
	if !ok {
		return fmt.Errorf("incorrect args")
	}

	connected, _ := checkArgs.ConnPool.ConnectedNow(checkArgs.Mode)
	if connected != checkArgs.ExpectedPoolStatus {
		return fmt.Errorf(
			"incorrect connection pool status: expected status %t actual status %t",
			checkArgs.ExpectedPoolStatus, connected)
	}

	poolInfo := checkArgs.ConnPool.GetInfo()
	for _, server := range checkArgs.Servers {
		info, ok := poolInfo[server]
		if !ok {
			return fmt.Errorf("no info for datasource %s", server)
		}
		if checkArgs.ExpectedStatuses[server] != info.Healthy {
			return fmt.Errorf(
				"incorrect health status: datasource %s expected status %t actual status %t",
				server, checkArgs.ExpectedStatuses[server], info.Healthy)
		}
	}

	return nil
}

// ProcessReadOnInstance helper reads as many times as requested and checks
// that the reads were served exactly by the expected datasources. It works
// with a MockDataSource, which returns its id as the only value of a query.
func ProcessReadOnInstance(args interface{}) error {
	actualSources := map[string]bool{}

	readArgs, ok := args.(ReadOnInstanceArgs)
	if !ok {
		return fmt.Errorf("incorrect args")
	}

	for i := 0; i < readArgs.ReadsNumber; i++ {
		rows, err := readArgs.ConnPool.Read(context.Background(), "SELECT datasource")
		if err != nil {
			return fmt.Errorf("fail to Read: %s", err.Error())
		}
		if rows.Len() < 1 || len(rows.Values[0]) < 1 {
			return fmt.Errorf("rows are empty after Read")
		}

		id, ok := rows.Values[0][0].(string)
		if !ok {
			return fmt.Errorf("rows are incorrect after Read")
		}

		actualSources[id] = true
	}

	equal := reflect.DeepEqual(actualSources, readArgs.ExpectedSources)
	if !equal {
		return fmt.Errorf("expected datasources: %v, actual datasources: %v",
			readArgs.ExpectedSources, actualSources)
	}

	return nil
}

func Retry(f func(interface{}) error, args interface{}, count int, timeout time.Duration) error {
	var err error

	for i := 0; ; i++ {
		err = f(args)
		if err == nil {
			return err
		}

		if i >= (count - 1) {
			break
		}

		time.Sleep(timeout)
	}

	return err
}

// LogRecorder is a dsrouter.Logger that keeps reported events.
type LogRecorder struct {
	mutex  sync.Mutex
	events []dsrouter.LogEvent
}

func (r *LogRecorder) Report(event dsrouter.LogEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.events = append(r.events, event)
}

// Events returns reported events with the name.
func (r *LogRecorder) Events(name string) []dsrouter.LogEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var ret []dsrouter.LogEvent
	for _, event := range r.events {
		if event.EventName() == name {
			ret = append(ret, event)
		}
	}
	return ret
}
