package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	driver "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/factor"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/store/mongo"
	"github.com/xraph/factor/store/storetest"
)

// The tests need a replica set, e.g.
// FACTOR_MONGO_URI="mongodb://localhost:27017/?replicaSet=rs0".
func testURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv("FACTOR_MONGO_URI")
	if uri == "" {
		t.Skip("FACTOR_MONGO_URI not set")
	}
	return uri
}

func openStore(t *testing.T, uri string) *mongo.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("factor_test_%d", time.Now().UnixNano())
	s, err := mongo.Open(uri, name)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() {
		_ = s.Database().Drop(context.Background())
		_ = s.Close()
	})
	return s
}

func TestConformance(t *testing.T) {
	uri := testURI(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		return openStore(t, uri)
	})
}

func TestWithTxRunsOnceOnTransientError(t *testing.T) {
	s := openStore(t, testURI(t))

	calls := 0
	err := s.WithTx(context.Background(), func(context.Context) error {
		calls++
		return driver.CommandError{
			Code:   112,
			Name:   "WriteConflict",
			Labels: []string{"TransientTransactionError"},
		}
	})

	assert.Equal(t, 1, calls)
	assert.True(t, factor.IsRetryable(err), "got %v", err)
}
