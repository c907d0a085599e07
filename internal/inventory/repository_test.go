package inventory

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_AvailableQuantities(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// each stock row is summed once however many zones route to it
	mock.ExpectQuery("SELECT st.variant_id, COALESCE\\(SUM\\(GREATEST\\(st.quantity - st.quantity_allocated, 0\\)\\), 0\\) " +
		"FROM stocks st WHERE st.id IN \\(SELECT s.id FROM stocks s .* JOIN warehouse_shipping_zones").
		WithArgs(pq.Array([]int64{10, 20}), "NL", "default").
		WillReturnRows(sqlmock.NewRows([]string{"variant_id", "available"}).
			AddRow(int64(10), 7).
			AddRow(int64(20), 0))

	got, err := NewRepository(db).AvailableQuantities(context.Background(), []int64{10, 20}, "NL", "default")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{10: 7, 20: 0}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LockStocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT st.id .* FROM stocks st .* ORDER BY st.id FOR UPDATE").
		WithArgs(pq.Array([]int64{10}), "NL", "default").
		WillReturnRows(sqlmock.NewRows([]string{"id", "warehouse_id", "variant_id", "quantity", "quantity_allocated"}).
			AddRow(int64(1), int64(3), int64(10), 5, 2))

	stocks, err := NewRepository(db).LockStocks(context.Background(), db, []int64{10}, "NL", "default")
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, 3, stocks[0].Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Allocate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	lineID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE stocks SET quantity_allocated = quantity_allocated \\+ \\$1").
			WithArgs(2, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO allocations").
			WithArgs(lineID, int64(1), 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Allocate(context.Background(), db, 1, lineID, 2))
	})

	t.Run("RowNoLongerCovers", func(t *testing.T) {
		mock.ExpectExec("UPDATE stocks").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Allocate(context.Background(), db, 1, lineID, 2)
		assert.ErrorIs(t, err, ErrAllocationMismatch)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
