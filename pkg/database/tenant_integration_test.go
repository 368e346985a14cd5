//go:build integration

package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/botdesk/pkg/database"
	"github.com/ekaya-inc/botdesk/pkg/testhelpers"
)

func TestRowLevelSecurity_PoliciesForced(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"bots", "knowledge_files", "message_logs"} {
		var enabled, forced bool
		err := testDB.Admin.QueryRow(ctx, `
			SELECT relrowsecurity, relforcerowsecurity
			FROM pg_class
			WHERE relname = $1 AND relkind = 'r'
		`, table).Scan(&enabled, &forced)
		require.NoError(t, err)
		assert.True(t, enabled, "%s should have row-level security enabled", table)
		assert.True(t, forced, "%s should force row-level security", table)

		var policyCount int
		err = testDB.Admin.QueryRow(ctx, `
			SELECT COUNT(*) FROM pg_policy p
			JOIN pg_class c ON c.oid = p.polrelid
			WHERE c.relname = $1
		`, table).Scan(&policyCount)
		require.NoError(t, err)
		assert.Equal(t, 1, policyCount, "%s should have one owner policy", table)
	}
}

func TestRowLevelSecurity_HidesOtherUsersRows(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	alice := testDB.CreateUser(t, "rls-alice")
	bob := testDB.CreateUser(t, "rls-bob")

	_, err := testDB.Admin.Exec(context.Background(),
		`INSERT INTO bots (user_id, platform, name) VALUES ($1, 'telegram', 'alice-bot')`, alice)
	require.NoError(t, err)

	// No WHERE clause: only RLS stands between bob and alice's bot.
	bobCtx, cleanup := testDB.TenantContext(t, bob)
	defer cleanup()

	scope, ok := database.GetTenantScope(bobCtx)
	require.True(t, ok)

	var visible int
	err = scope.Conn.QueryRow(bobCtx,
		`SELECT COUNT(*) FROM bots WHERE user_id = $1`, alice).Scan(&visible)
	require.NoError(t, err)
	assert.Equal(t, 0, visible, "bob must not see alice's bots")

	aliceCtx, aliceCleanup := testDB.TenantContext(t, alice)
	defer aliceCleanup()

	aliceScope, _ := database.GetTenantScope(aliceCtx)
	err = aliceScope.Conn.QueryRow(aliceCtx,
		`SELECT COUNT(*) FROM bots WHERE user_id = $1`, alice).Scan(&visible)
	require.NoError(t, err)
	assert.Equal(t, 1, visible)
}

func TestTenantScope_CloseResetsSetting(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	user := testDB.CreateUser(t, "reset")

	scope, err := testDB.DB.WithTenant(context.Background(), user)
	require.NoError(t, err)

	var current string
	err = scope.Conn.QueryRow(context.Background(),
		"SELECT current_setting('app.current_user_id', true)").Scan(&current)
	require.NoError(t, err)
	assert.Equal(t, user.String(), current)

	conn := scope.Conn.Conn()
	scope.Close()

	// The underlying connection goes back to the pool with the setting cleared.
	var after *string
	err = conn.QueryRow(context.Background(),
		"SELECT NULLIF(current_setting('app.current_user_id', true), '')").Scan(&after)
	require.NoError(t, err)
	assert.Nil(t, after)
}

func TestWithinTx_CommitAndRollback(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	user := testDB.CreateUser(t, "tx")

	ctx, cleanup := testDB.TenantContext(t, user)
	defer cleanup()

	errBoom := errors.New("boom")
	err := database.WithinTx(ctx, func(ctx context.Context) error {
		q, ok := database.GetQuerier(ctx)
		require.True(t, ok)
		_, err := q.Exec(ctx, `INSERT INTO bots (user_id, platform, name) VALUES ($1, 'whatsapp', 'rolled-back')`, user)
		require.NoError(t, err)
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = database.WithinTx(ctx, func(ctx context.Context) error {
		q, _ := database.GetQuerier(ctx)
		_, err := q.Exec(ctx, `INSERT INTO bots (user_id, platform, name) VALUES ($1, 'whatsapp', 'committed')`, user)
		return err
	})
	require.NoError(t, err)

	var names []string
	rows, err := testDB.Admin.Query(context.Background(),
		`SELECT name FROM bots WHERE user_id = $1 ORDER BY name`, user)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"committed"}, names)
}
