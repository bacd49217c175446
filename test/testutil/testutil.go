package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/testdb"
	log "gopkg.in/inconshreveable/log15.v2"
)

// InitTestDBManager performs the standard initialization of a *testdb.Manager for the PostgreSQL store tests. It
// requires a *testing.M to ensure it is only called by TestMain. It returns nil when TEST_DATABASE is not set so
// PostgreSQL tests can be skipped. If connecting fails it calls os.Exit(1).
func InitTestDBManager(*testing.M) *testdb.Manager {
	dbname := os.Getenv("TEST_DATABASE")
	if dbname == "" {
		return nil
	}

	manager := &testdb.Manager{
		ResetDB: func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, `drop table if exists deliveries, articles, bindings, webhooks, flux, schema_version cascade`)
			return err
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := manager.Connect(ctx, fmt.Sprintf("dbname=%s", dbname))
	if err != nil {
		fmt.Println("failed to init testdb.Manager:", err)
		os.Exit(1)
	}

	return manager
}

// NewLogger returns a logger that discards everything unless TEST_LOG is set.
func NewLogger() log.Logger {
	logger := log.New()
	if os.Getenv("TEST_LOG") == "" {
		logger.SetHandler(log.DiscardHandler())
	} else {
		logger.SetHandler(log.StderrHandler)
	}
	return logger
}

// Eventually polls cond until it returns true or timeout passes.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
