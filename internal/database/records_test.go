package database

import (
	"context"
	"os"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subzone/db"
	"subzone/internal/model"
)

// openTestDB connects to the PostgreSQL named by DATABASE_URL and applies
// the migrations. Tests using it are skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	d, err := Open(dsn, db.MigrationsFS(), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func testAccount(t *testing.T, d *DB) *model.Account {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	a := &model.Account{
		ID:           id,
		Email:        id + "@example.com",
		Name:         "Test",
		Plan:         "free",
		Role:         model.RoleUser,
		RecordLimit:  5,
		ReferralCode: id[:8],
	}
	require.NoError(t, d.CreateAccount(ctx, a, ""))
	t.Cleanup(func() {
		d.conn.ExecContext(ctx, "DELETE FROM dns_records WHERE owner_id = $1", id)
		d.conn.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
	})
	return a
}

func testRecord(owner *model.Account, name string) *model.Record {
	id := uuid.NewString()
	return &model.Record{
		ID:         id,
		ProviderID: "p-" + id,
		OwnerID:    owner.ID,
		Name:       name,
		FullName:   name + "-" + id[:8] + ".example.com",
		Type:       "A",
		Content:    "192.0.2.1",
		TTL:        model.AutoTTL,
	}
}

func recordCount(t *testing.T, d *DB, id string) int {
	t.Helper()
	a, err := d.GetAccount(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, a)
	return a.RecordCount
}

func TestInsertRecord_CountsAndDuplicates(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	owner := testAccount(t, d)

	r1 := testRecord(owner, "host1")
	require.NoError(t, d.InsertRecord(ctx, r1))
	assert.False(t, r1.CreatedAt.IsZero())
	assert.Equal(t, 1, recordCount(t, d, owner.ID))

	dup := testRecord(owner, "host1")
	dup.FullName = r1.FullName
	err := d.InsertRecord(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicate)

	// the failed insert rolled back its counter bump
	assert.Equal(t, 1, recordCount(t, d, owner.ID))
	n, err := d.CountRecordsByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteRecord_ClampsAtZero(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	owner := testAccount(t, d)

	r1 := testRecord(owner, "host1")
	r2 := testRecord(owner, "host2")
	require.NoError(t, d.InsertRecord(ctx, r1))
	require.NoError(t, d.InsertRecord(ctx, r2))
	assert.Equal(t, 2, recordCount(t, d, owner.ID))

	clamped, err := d.DeleteRecord(ctx, r1.ID)
	require.NoError(t, err)
	assert.False(t, clamped)
	assert.Equal(t, 1, recordCount(t, d, owner.ID))

	// drift the counter below the true count
	_, err = d.conn.ExecContext(ctx, "UPDATE accounts SET record_count = 0 WHERE id = $1", owner.ID)
	require.NoError(t, err)

	clamped, err = d.DeleteRecord(ctx, r2.ID)
	require.NoError(t, err)
	assert.True(t, clamped)
	assert.Equal(t, 0, recordCount(t, d, owner.ID))

	// deleting again is a no-op
	clamped, err = d.DeleteRecord(ctx, r2.ID)
	require.NoError(t, err)
	assert.False(t, clamped)
}

func TestRecountRecords(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	owner := testAccount(t, d)
	require.NoError(t, d.InsertRecord(ctx, testRecord(owner, "host1")))

	_, err := d.conn.ExecContext(ctx, "UPDATE accounts SET record_count = 7 WHERE id = $1", owner.ID)
	require.NoError(t, err)

	n, err := d.RecountRecords(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, recordCount(t, d, owner.ID))
}

func TestLookups_MalformedID(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	owner := testAccount(t, d)

	rec, err := d.GetRecord(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = d.GetOwnedRecord(ctx, "not-a-uuid", owner.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	acct, err := d.GetAccount(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, acct)

	clamped, err := d.DeleteRecord(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.False(t, clamped)
}
