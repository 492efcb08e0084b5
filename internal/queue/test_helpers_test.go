package queue

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/tideline/internal/task"
)

// createTestQueue creates a queue backed by a temporary database.
func createTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

// createTestTask creates a distinct publish task from a seed.
func createTestTask(t *testing.T, seed int) task.Task {
	t.Helper()
	tk, err := task.NewPublishMessage("/test/topic", []byte(fmt.Sprintf(`{"seed":%d}`, seed)))
	if err != nil {
		t.Fatalf("NewPublishMessage() failed: %v", err)
	}
	return tk
}
