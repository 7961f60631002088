package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPostgresStore runs the shared contract against a real database. It is
// skipped unless PLURAL_GATEWAY_TEST_DATABASE_URL points at a disposable one.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PLURAL_GATEWAY_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PLURAL_GATEWAY_TEST_DATABASE_URL not set")
	}

	runStoreContract(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := OpenPostgres(ctx, url)
		require.NoError(t, err)

		for _, table := range []string{"gateway_messages", "gateway_sessions", "gateway_projects"} {
			_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
		t.Cleanup(s.Close)
		return s
	})
}

func TestOpenPostgres_BadURL(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "postgres://%zz")
	require.Error(t, err)
}
