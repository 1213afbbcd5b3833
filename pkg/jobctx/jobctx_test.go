package jobctx

import (
	"context"
	"sync"
	"testing"
)

func TestFromContext(t *testing.T) {
	t.Run("returns run context when set", func(t *testing.T) {
		// Arrange
		rc := RunContext{Namespace: "nightly", JobID: "nightly/extract", RunID: "r1", Attempt: 2, Resumed: true}
		ctx := WithRunContext(context.Background(), rc)

		// Act
		got, ok := FromContext(ctx)

		// Assert
		if !ok {
			t.Fatal("expected run context, got none")
		}
		if got.JobID != "nightly/extract" {
			t.Errorf("expected job id %q, got %q", "nightly/extract", got.JobID)
		}
		if !got.Resumed || got.Attempt != 2 {
			t.Errorf("expected resumed attempt 2, got resumed=%v attempt=%d", got.Resumed, got.Attempt)
		}
	})

	t.Run("reports absence outside a job", func(t *testing.T) {
		// Act
		_, ok := FromContext(context.Background())

		// Assert
		if ok {
			t.Error("expected no run context")
		}
		if id := JobIDFromContext(context.Background()); id != "" {
			t.Errorf("expected empty job id, got %q", id)
		}
		if cfg := ConfigFromContext(context.Background()); cfg != nil {
			t.Errorf("expected nil config, got %v", cfg)
		}
	})
}

func TestWithRunContext_IsolatedPerInvocation(t *testing.T) {
	// Arrange
	base := context.Background()
	ids := []string{"a", "b", "c", "d"}
	seen := make([]string, len(ids))

	// Act
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			ctx := WithRunContext(base, RunContext{Namespace: "ns", JobID: id})
			seen[i] = JobIDFromContext(ctx)
		}(i, id)
	}
	wg.Wait()

	// Assert
	for i, id := range ids {
		if seen[i] != id {
			t.Errorf("goroutine %d saw %q, want %q", i, seen[i], id)
		}
	}
	if ns := NamespaceFromContext(WithRunContext(base, RunContext{Namespace: "ns"})); ns != "ns" {
		t.Errorf("expected namespace ns, got %q", ns)
	}
}
