package balancer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-dsrouter/balancer"
)

func TestCheckIfRequiresWrite(t *testing.T) {
	tests := []struct {
		expr          string
		_default      bool
		expectedExpr  string
		expectedWrite bool
	}{
		{"SELECT * FROM users", true, "SELECT * FROM users", false},
		{"  \n\tselect 1", true, "  \n\tselect 1", false},
		{"INSERT INTO users VALUES (1)", false, "INSERT INTO users VALUES (1)", true},
		{"update users set name = ?", false, "update users set name = ?", true},
		{"DELETE FROM users", false, "DELETE FROM users", true},
		{"REPLACE INTO users VALUES (1)", false, "REPLACE INTO users VALUES (1)", true},
		{"values (1), (2)", true, "values (1), (2)", false},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true, "WITH t AS (SELECT 1) SELECT * FROM t", false},
		{"WITH t AS (DELETE FROM a RETURNING *) SELECT * FROM t", false,
			"WITH t AS (DELETE FROM a RETURNING *) SELECT * FROM t", true},
		{"SELECT * FROM users WHERE id = 1 FOR UPDATE", false,
			"SELECT * FROM users WHERE id = 1 FOR UPDATE", true},
		{"select updated_at from users", true, "select updated_at from users", false},
		{"{{non-writable}}CALL report()", true, "CALL report()", false},
		{"{{writable}}SELECT next_id()", false, "SELECT next_id()", true},
		{"{{WRITABLE}} INSERT INTO users VALUES (1)", false, " INSERT INTO users VALUES (1)", true},
		{"  {{Non-Writable}}SELECT 1", true, "  SELECT 1", false},
		{"SELECT '{{writable}}'", true, "SELECT '{{writable}}'", false},
		{"PRAGMA journal_mode", true, "PRAGMA journal_mode", true},
		{"PRAGMA journal_mode", false, "PRAGMA journal_mode", false},
		{"", true, "", true},
	}

	for _, test := range tests {
		t.Run(test.expr, func(t *testing.T) {
			expr, write := balancer.CheckIfRequiresWrite(test.expr, test._default)
			require.Equal(t, test.expectedExpr, expr)
			require.Equal(t, test.expectedWrite, write)
		})
	}
}

func TestReturnsRows(t *testing.T) {
	require.True(t, balancer.ReturnsRows("SELECT 1"))
	require.True(t, balancer.ReturnsRows("  with t as (select 1) select * from t"))
	require.True(t, balancer.ReturnsRows("select * from users for update"))
	require.False(t, balancer.ReturnsRows("INSERT INTO users VALUES (1)"))
	require.False(t, balancer.ReturnsRows("call report()"))
	require.False(t, balancer.ReturnsRows(""))
}
