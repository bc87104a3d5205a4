package audit

import (
	"context"
	"errors"
	"testing"
)

// mockRepository implements Repository with overridable function fields.
type mockRepository struct {
	insertFunc    func(ctx context.Context, message string, userID *string, level Level) error
	listFunc      func(ctx context.Context, offset, limit int) ([]Entry, error)
	countFunc     func(ctx context.Context) (int, error)
	deleteOneFunc func(ctx context.Context, id string) error
	deleteAllFunc func(ctx context.Context) error
}

func (m *mockRepository) Insert(ctx context.Context, message string, userID *string, level Level) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, message, userID, level)
	}
	return nil
}

func (m *mockRepository) List(ctx context.Context, offset, limit int) ([]Entry, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockRepository) Count(ctx context.Context) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockRepository) DeleteOne(ctx context.Context, id string) error {
	if m.deleteOneFunc != nil {
		return m.deleteOneFunc(ctx, id)
	}
	return nil
}

func (m *mockRepository) DeleteAll(ctx context.Context) error {
	if m.deleteAllFunc != nil {
		return m.deleteAllFunc(ctx)
	}
	return nil
}

func actorID() *string {
	id := "u1"
	return &id
}

func TestAppend_PersistsEntry(t *testing.T) {
	var gotMessage string
	var gotLevel Level
	repo := &mockRepository{
		insertFunc: func(ctx context.Context, message string, userID *string, level Level) error {
			gotMessage = message
			gotLevel = level
			return nil
		},
	}

	svc := NewService(repo)
	svc.Append(context.Background(), "user logged in", actorID(), LevelInfo)

	if gotMessage != "user logged in" {
		t.Errorf("expected message to be persisted, got %q", gotMessage)
	}
	if gotLevel != LevelInfo {
		t.Errorf("expected level info, got %q", gotLevel)
	}
}

func TestAppend_DropsInvalidLevel(t *testing.T) {
	inserted := false
	repo := &mockRepository{
		insertFunc: func(ctx context.Context, message string, userID *string, level Level) error {
			inserted = true
			return nil
		},
	}

	svc := NewService(repo)
	svc.Append(context.Background(), "something happened", actorID(), Level("trace"))

	if inserted {
		t.Error("entry with unknown level should be dropped, not persisted")
	}
}

func TestAppend_DropsEmptyMessage(t *testing.T) {
	inserted := false
	repo := &mockRepository{
		insertFunc: func(ctx context.Context, message string, userID *string, level Level) error {
			inserted = true
			return nil
		},
	}

	svc := NewService(repo)
	svc.Append(context.Background(), "", actorID(), LevelInfo)

	if inserted {
		t.Error("entry with empty message should be dropped")
	}
}

func TestAppend_DropsMissingUserID(t *testing.T) {
	inserts := 0
	repo := &mockRepository{
		insertFunc: func(ctx context.Context, message string, userID *string, level Level) error {
			inserts++
			return nil
		},
	}

	svc := NewService(repo)
	svc.Append(context.Background(), "account deleted: jane", nil, LevelInfo)

	empty := ""
	svc.Append(context.Background(), "account deleted: jane", &empty, LevelInfo)

	if inserts != 0 {
		t.Errorf("entries without a userId must be dropped silently, got %d inserts", inserts)
	}
}

func TestAppend_SwallowsRepositoryError(t *testing.T) {
	repo := &mockRepository{
		insertFunc: func(ctx context.Context, message string, userID *string, level Level) error {
			return errors.New("connection lost")
		},
	}

	svc := NewService(repo)
	// Must not panic or surface the error in any way.
	svc.Append(context.Background(), "user logged in", actorID(), LevelInfo)
}

func TestList_ClampsPagination(t *testing.T) {
	var gotOffset, gotLimit int
	repo := &mockRepository{
		countFunc: func(ctx context.Context) (int, error) { return 7, nil },
		listFunc: func(ctx context.Context, offset, limit int) ([]Entry, error) {
			gotOffset, gotLimit = offset, limit
			return []Entry{{ID: "e1"}}, nil
		},
	}

	svc := NewService(repo)
	entries, total, err := svc.List(context.Background(), 0, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 {
		t.Errorf("expected total 7, got %d", total)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if gotOffset != 0 {
		t.Errorf("page 0 should clamp to offset 0, got %d", gotOffset)
	}
	if gotLimit != defaultPageSize {
		t.Errorf("negative size should clamp to default %d, got %d", defaultPageSize, gotLimit)
	}
}

func TestList_SecondPageOffset(t *testing.T) {
	var gotOffset int
	repo := &mockRepository{
		countFunc: func(ctx context.Context) (int, error) { return 100, nil },
		listFunc: func(ctx context.Context, offset, limit int) ([]Entry, error) {
			gotOffset = offset
			return nil, nil
		},
	}

	svc := NewService(repo)
	if _, _, err := svc.List(context.Background(), 3, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 40 {
		t.Errorf("page 3 size 20 should give offset 40, got %d", gotOffset)
	}
}

func TestDeleteOne_RequiresID(t *testing.T) {
	svc := NewService(&mockRepository{})
	if err := svc.DeleteOne(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
}
