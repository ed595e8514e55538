//go:build database

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// exerciseHistory runs the full history lifecycle against one backend.
func exerciseHistory(t *testing.T, backend, connStr string) {
	f := newFixture(t)
	env := []string{
		"ATTENDRISK_HISTORY_BACKEND=" + backend,
		"ATTENDRISK_HISTORY_DB_CONNECT=" + connStr,
	}

	_, err := run(t, f.dir, env, "history", "migrate")
	require.NoError(t, err)

	_, err = run(t, f.dir, env, "history", "clear")
	require.NoError(t, err)

	_, err = run(t, f.dir, env, f.args("evaluate", "--output", "json")...)
	require.NoError(t, err)

	_, err = run(t, f.dir, env, f.args("check", "--max-at-risk", "-1")...)
	require.NoError(t, err)

	out, err := run(t, f.dir, env, "history", "status")
	require.NoError(t, err)
	assert.Contains(t, out, backend)

	exportBase := filepath.Join(f.dir, backend)
	_, err = run(t, f.dir, env, "history", "export", "--export-file", exportBase)
	require.NoError(t, err)
	assert.FileExists(t, exportBase+".evaluation_runs.parquet")
	assert.FileExists(t, exportBase+".student_reports.parquet")

	_, err = run(t, f.dir, env, "history", "migrate", "--target-version", "0")
	require.NoError(t, err)
}

// TestHistoryWithMySQL tests the attendrisk CLI with a MySQL history backend.
func TestHistoryWithMySQL(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "attendrisk",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = mysqlC.Terminate(ctx) }()

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)

	exerciseHistory(t, "mysql", fmt.Sprintf("root:secret123@tcp(%s:%s)/attendrisk?parseTime=true", host, port.Port()))
}

// TestHistoryWithPostgres tests the attendrisk CLI with a PostgreSQL history backend.
func TestHistoryWithPostgres(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	exerciseHistory(t, "postgresql", fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres sslmode=disable", host, port.Port()))
}
