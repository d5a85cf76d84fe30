package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/haasonsaas/chatagent/pkg/models"
)

func TestCurrentSession_NoScope(t *testing.T) {
	if _, err := CurrentSession(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if SessionFromContext(context.Background()) != nil {
		t.Fatal("expected nil session")
	}
	if ctx := WithSession(context.Background(), nil); SessionFromContext(ctx) != nil {
		t.Fatal("binding nil must not create a scope")
	}
}

func TestCurrentSession_NestedScopes(t *testing.T) {
	outer := WithSession(context.Background(), &models.Session{ID: "outer"})
	inner := WithSession(outer, &models.Session{ID: "inner"})

	if s, _ := CurrentSession(inner); s.ID != "inner" {
		t.Fatalf("inner scope resolved %q", s.ID)
	}
	if s, _ := CurrentSession(outer); s.ID != "outer" {
		t.Fatalf("outer scope resolved %q after inner binding", s.ID)
	}
}

func TestCurrentSession_ConcurrentScopesIsolated(t *testing.T) {
	const workers = 64
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", i)
			ctx := WithSession(context.Background(), &models.Session{ID: id})
			for j := 0; j < 100; j++ {
				s, err := CurrentSession(ctx)
				if err != nil || s.ID != id {
					errs <- fmt.Errorf("worker %d resolved %v (err %v)", i, s, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
