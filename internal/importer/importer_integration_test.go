package importer

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
)

// TestImporterIntegration spins up a real MySQL container and exercises
// Open/ListTables/IntrospectTable/InsertBatches against it end to end.
func TestImporterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)

	seed, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = seed.Close() })
	require.NoError(t, seed.PingContext(ctx))

	_, err = seed.ExecContext(ctx, `CREATE TABLE people (
		id INT PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) UNIQUE
	)`)
	require.NoError(t, err)
	_, err = seed.ExecContext(ctx, `INSERT INTO people (name, email) VALUES ('Josh', 'josh@example.com'), ('Hugh', NULL)`)
	require.NoError(t, err)

	im, err := Open(ctx, dsn, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = im.Close() })

	names, err := im.ListTables(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "people")

	tbl, err := im.IntrospectTable(ctx, "people")
	require.NoError(t, err)
	require.Len(t, tbl.Columns, 3)
	require.Contains(t, tbl.Unique, "email")
	require.Contains(t, tbl.CreateTableSQL(), "id INT PRIMARY KEY")

	var batches []string
	require.NoError(t, im.InsertBatches(ctx, tbl, func(stmt string) error {
		batches = append(batches, stmt)
		return nil
	}))
	require.Len(t, batches, 2) // batch size 1, two source rows
}
