package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRepo_Reserve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := &domain.DedupLedgerEntry{
		TenantID: uuid.New(), RuleID: uuid.New(),
		EntityType: domain.EntityOrder, EntityID: "o1",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dedup_ledger .+ ON CONFLICT .+ DO NOTHING").
		WithArgs(e.TenantID, e.RuleID, e.EntityType, e.EntityID, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO dedup_ledger").
		WithArgs(e.TenantID, e.RuleID, e.EntityType, e.EntityID, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	created, err := repo.Reserve(context.Background(), tx, e)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Reserve(context.Background(), tx, e)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_Reserve_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO dedup_ledger").WillReturnError(errors.New("deadlock detected"))

	_, err = NewLedgerRepo(mock).Reserve(context.Background(), nil, &domain.DedupLedgerEntry{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve dedup ledger entry")
}
