package product

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations_NameFor(t *testing.T) {
	tr := Translations{1: "Kaos", 2: "Shirt"}

	assert.Equal(t, "Kaos", tr.NameFor(1, "Shirt"))
	assert.Equal(t, "", tr.NameFor(2, "Shirt"), "equal to canonical name is blanked")
	assert.Equal(t, "", tr.NameFor(3, "Hat"))
}

func TestRepository_ProductTranslations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT product_id, name FROM product_translations").
			WithArgs(pq.Array([]int64{10, 11}), "id").
			WillReturnRows(sqlmock.NewRows([]string{"product_id", "name"}).
				AddRow(int64(10), "Kaos Polos").
				AddRow(int64(11), "Topi"))

		tr, err := repo.ProductTranslations(ctx, []int64{10, 11}, "id")
		require.NoError(t, err)
		assert.Equal(t, "Kaos Polos", tr[10])
		assert.Equal(t, "Topi", tr[11])
	})

	t.Run("NoLanguageSkipsQuery", func(t *testing.T) {
		tr, err := repo.ProductTranslations(ctx, []int64{10}, "")
		require.NoError(t, err)
		assert.Empty(t, tr)
	})

	t.Run("QueryError", func(t *testing.T) {
		mock.ExpectQuery("SELECT product_id, name").WillReturnError(errors.New("db error"))

		tr, err := repo.ProductTranslations(ctx, []int64{10}, "id")
		assert.Error(t, err)
		assert.Nil(t, tr)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_VariantTranslations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT variant_id, name FROM variant_translations").
		WithArgs(pq.Array([]int64{5}), "de").
		WillReturnRows(sqlmock.NewRows([]string{"variant_id", "name"}).AddRow(int64(5), "Groß"))

	tr, err := NewRepository(db).VariantTranslations(context.Background(), []int64{5}, "de")
	require.NoError(t, err)
	assert.Equal(t, "Groß", tr[5])
}

func TestRepository_OptionValues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)

	mock.ExpectQuery("SELECT ov.id, ov.name, o.type").
		WithArgs(pq.Array([]int64{3}), "default-channel").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "price", "currency_code"}).
			AddRow(int64(3), "Gift wrap", "addon", "2.50", "USD"))

	values, err := repo.OptionValues(context.Background(), []int64{3}, "default-channel")
	require.NoError(t, err)
	require.Contains(t, values, int64(3))
	assert.Equal(t, "Gift wrap", values[3].Name)
	assert.True(t, decimal.RequireFromString("2.50").Equal(values[3].Price))
	assert.Equal(t, "USD", values[3].Currency)

	empty, err := repo.OptionValues(context.Background(), nil, "default-channel")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
