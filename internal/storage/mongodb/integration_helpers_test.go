package mongodb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const defaultLocalIntegrationURI = "mongodb://localhost:27017"

func openMongoStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	candidates := []string{
		strings.TrimSpace(os.Getenv("ORDERMS_MONGO_TEST_URI")),
		strings.TrimSpace(os.Getenv("ORDERMS_MONGO_URI")),
		defaultLocalIntegrationURI,
	}

	seen := map[string]struct{}{}
	var openErrs []string
	for _, uri := range candidates {
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		store, err := Open(ctx, uri, "orderms_test")
		cancel()
		if err == nil {
			t.Cleanup(func() {
				_ = store.Close(context.Background())
			})
			clearCollectionForIntegrationTest(t, store)
			return store
		}
		openErrs = append(openErrs, fmt.Sprintf("%s: %v", uri, err))
	}

	t.Skipf("mongodb is not available for integration tests: %s", strings.Join(openErrs, " | "))
	return nil
}

func clearCollectionForIntegrationTest(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.Collection().DeleteMany(ctx, bson.D{}); err != nil {
		t.Fatalf("clear integration collection: %v", err)
	}
}
