package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"os/exec"
	"testing"

	"warimas-checkout/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "localhost",
		DBUser:     "test_user",
		DBPassword: "test_password",
		DBName:     "test_db",
		DBPort:     "5432",
	}

	expected := "host=localhost user=test_user password=test_password dbname=test_db port=5432 sslmode=disable"
	assert.Equal(t, expected, buildDSN(cfg))
}

func TestNewDatabase_InvalidDriver(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{}, "invalid_driver_name")

	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to connect to DB")
}

func TestInitDB_Failure(t *testing.T) {
	// Runs the test binary as a subprocess to observe log.Fatalf
	if os.Getenv("BE_CRASHER") == "1" {
		InitDB(&config.Config{DBHost: "invalid_host", DBPort: "5432"})
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestInitDB_Failure")
	cmd.Env = append(os.Environ(), "BE_CRASHER=1")
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Success() {
		return
	}
	t.Fatalf("process ran with err %v, want exit status 1", err)
}

// --- Mock Driver for Success Test ---

type mockDriver struct{}

func (m *mockDriver) Open(name string) (driver.Conn, error) { return &mockConn{}, nil }

type mockConn struct{}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) { return &mockStmt{}, nil }
func (c *mockConn) Close() error                              { return nil }
func (c *mockConn) Begin() (driver.Tx, error)                 { return nil, nil }

type mockStmt struct{}

func (s *mockStmt) Close() error                                    { return nil }
func (s *mockStmt) NumInput() int                                   { return 0 }
func (s *mockStmt) Exec(args []driver.Value) (driver.Result, error) { return nil, nil }
func (s *mockStmt) Query(args []driver.Value) (driver.Rows, error)  { return nil, nil }

func init() {
	sql.Register("mock_driver_success", &mockDriver{})
}

func TestNewDatabase_Success(t *testing.T) {
	db, err := newDatabaseWithDriver(&config.Config{DBHost: "localhost"}, "mock_driver_success")
	assert.NoError(t, err)
	assert.NotNil(t, db)
}

func TestRunInTx(t *testing.T) {
	t.Run("commits and runs hooks", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM checkouts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		hookRan := false
		err = RunInTx(context.Background(), conn, func(tx *Tx) error {
			tx.AfterCommit(func() { hookRan = true })
			_, err := tx.ExecContext(context.Background(), "DELETE FROM checkouts")
			return err
		})

		assert.NoError(t, err)
		assert.True(t, hookRan)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and skips hooks on error", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		hookRan := false
		boom := errors.New("boom")
		err = RunInTx(context.Background(), conn, func(tx *Tx) error {
			tx.AfterCommit(func() { hookRan = true })
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.False(t, hookRan)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit failure skips hooks", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		hookRan := false
		err = RunInTx(context.Background(), conn, func(tx *Tx) error {
			tx.AfterCommit(func() { hookRan = true })
			return nil
		})

		assert.ErrorContains(t, err, "commit tx")
		assert.False(t, hookRan)
	})

	t.Run("begin failure", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectBegin().WillReturnError(errors.New("no conn"))

		err = RunInTx(context.Background(), conn, func(tx *Tx) error { return nil })
		assert.ErrorContains(t, err, "begin tx")
	})
}
