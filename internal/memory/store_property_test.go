package memory

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/haasonsaas/chatagent/internal/storage"
)

// Property: retrieve(k) after store(k, v) is v; a second store keeps createdAt and
// strictly advances updatedAt.
func TestStoreRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("store then retrieve round-trips", prop.ForAll(
		func(key, v1, v2 string) bool {
			ctx := context.Background()
			store := NewStore("p", storage.NewMemoryMemoryStore(), WithClock(frozenClock()))

			first, err := store.Store(ctx, key, v1)
			if err != nil {
				return false
			}
			got, ok, err := store.Retrieve(ctx, key)
			if err != nil || !ok || got.Value != v1 {
				return false
			}
			second, err := store.Store(ctx, key, v2)
			if err != nil {
				return false
			}
			return second.CreatedAt.Equal(first.CreatedAt) && second.UpdatedAt.After(first.UpdatedAt)
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("forget succeeds exactly once", prop.ForAll(
		func(keys []string) bool {
			ctx := context.Background()
			store := NewStore("p", storage.NewMemoryMemoryStore())
			seen := map[string]bool{}
			for _, k := range keys {
				if _, err := store.Store(ctx, k, "v"); err != nil {
					return false
				}
				seen[k] = true
			}
			for k := range seen {
				if ok, err := store.Forget(ctx, k); err != nil || !ok {
					return false
				}
				if ok, err := store.Forget(ctx, k); err != nil || ok {
					return false
				}
			}
			entries, err := store.List(ctx)
			return err == nil && len(entries) == 0
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestStoreMonotonicUpdatedAtWithRealClock(t *testing.T) {
	ctx := context.Background()
	store := NewStore("p", storage.NewMemoryMemoryStore())
	prev, err := store.Store(ctx, "k", "0")
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := store.Store(ctx, "k", "v")
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if !next.UpdatedAt.After(prev.UpdatedAt) {
			t.Fatalf("updatedAt did not advance: %v then %v", prev.UpdatedAt, next.UpdatedAt)
		}
		if !next.CreatedAt.Equal(prev.CreatedAt) {
			t.Fatalf("createdAt changed: %v then %v", prev.CreatedAt, next.CreatedAt)
		}
		prev = next
	}
}
