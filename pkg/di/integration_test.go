package di

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
)

// User represents a test model for integration tests.
type User struct {
	ID    string `json:"id" bun:"id,pk"`
	Name  string `json:"name" bun:"name"`
	Email string `json:"email" bun:"email"`
}

// mockUserRepository fakes the base repository for the flows exercised
// here. The embedded interface covers the methods these tests never
// reach; calling one of those panics, which is the desired failure mode.
type mockUserRepository struct {
	repository.Repository[User]

	mu        sync.RWMutex
	users     map[string]User
	callCount map[string]int
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users:     make(map[string]User),
		callCount: make(map[string]int),
	}
}

func (m *mockUserRepository) trackCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount[method]++
}

func (m *mockUserRepository) getCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[method]
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (User, error) {
	m.trackCall("GetByID")
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, exists := m.users[id]
	if !exists {
		return User{}, errors.New("user not found")
	}
	return user, nil
}

func (m *mockUserRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]User, int, error) {
	m.trackCall("List")
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	return users, len(users), nil
}

func (m *mockUserRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.trackCall("Count")
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *mockUserRepository) Create(ctx context.Context, user User, criteria ...repository.InsertCriteria) (User, error) {
	m.trackCall("Create")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user, nil
}

func (m *mockUserRepository) Update(ctx context.Context, user User, criteria ...repository.UpdateCriteria) (User, error) {
	m.trackCall("Update")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user, nil
}

func (m *mockUserRepository) Handlers() repository.ModelHandlers[User] {
	return repository.ModelHandlers[User]{}
}

// TestEndToEndCachedRepositoryFlow wires a cached repository through the
// container and walks the read, cache-hit, write, and re-read path.
func TestEndToEndCachedRepositoryFlow(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() error = %v", err)
	}

	mockRepo := newMockUserRepository()
	testUser := User{ID: "test-123", Name: "Test User", Email: "test@example.com"}
	if _, err := mockRepo.Create(context.Background(), testUser); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	cachedRepo := NewCachedRepository(container, mockRepo)
	ctx := context.Background()

	// First read hits the base repository.
	user1, err := cachedRepo.GetByID(ctx, "test-123")
	if err != nil {
		t.Fatalf("first GetByID failed: %v", err)
	}
	if user1.ID != testUser.ID || user1.Name != testUser.Name {
		t.Errorf("first GetByID = %+v, want %+v", user1, testUser)
	}
	if got := mockRepo.getCallCount("GetByID"); got != 1 {
		t.Errorf("base GetByID calls = %d, want 1", got)
	}

	// Second read must be a cache hit.
	user2, err := cachedRepo.GetByID(ctx, "test-123")
	if err != nil {
		t.Fatalf("second GetByID failed: %v", err)
	}
	if user2 != user1 {
		t.Errorf("cached GetByID = %+v, want %+v", user2, user1)
	}
	if got := mockRepo.getCallCount("GetByID"); got != 1 {
		t.Errorf("base GetByID calls after cached read = %d, want 1", got)
	}

	// List population and cache hit.
	users, total, err := cachedRepo.List(ctx)
	if err != nil {
		t.Fatalf("first List failed: %v", err)
	}
	if len(users) != 1 || total != 1 {
		t.Errorf("first List = %d users, total %d", len(users), total)
	}
	if _, _, err := cachedRepo.List(ctx); err != nil {
		t.Fatalf("second List failed: %v", err)
	}
	if got := mockRepo.getCallCount("List"); got != 1 {
		t.Errorf("base List calls = %d, want 1", got)
	}

	// A write invalidates the entity and orphans cached lists.
	updated := testUser
	updated.Name = "Updated User"
	if _, err := cachedRepo.Update(ctx, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	user3, err := cachedRepo.GetByID(ctx, "test-123")
	if err != nil {
		t.Fatalf("GetByID after update failed: %v", err)
	}
	if user3.Name != "Updated User" {
		t.Errorf("GetByID after update = %+v, stale entry survived", user3)
	}

	if _, total, err = cachedRepo.List(ctx); err != nil || total != 1 {
		t.Fatalf("List after update = (total %d, %v)", total, err)
	}
	if got := mockRepo.getCallCount("List"); got != 2 {
		t.Errorf("base List calls after update = %d, want 2 (version bump re-fetch)", got)
	}
}

// TestContainerSharedAcrossModels verifies two repositories over different
// model names share one manager without key collisions.
func TestContainerSharedAcrossModels(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() error = %v", err)
	}

	ctx := context.Background()
	usersRepo := NewCachedRepository(container, newMockUserRepository())
	adminsRepo := NewCachedRepository(container, newMockUserRepository(),
		repositorycache.WithModelName[User]("admins"))

	if _, err := usersRepo.Create(ctx, User{ID: "u-1", Name: "User"}); err != nil {
		t.Fatalf("users Create failed: %v", err)
	}
	if _, err := adminsRepo.Create(ctx, User{ID: "u-1", Name: "Admin"}); err != nil {
		t.Fatalf("admins Create failed: %v", err)
	}

	got, err := usersRepo.GetByID(ctx, "u-1")
	if err != nil {
		t.Fatalf("users GetByID failed: %v", err)
	}
	admin, err := adminsRepo.GetByID(ctx, "u-1")
	if err != nil {
		t.Fatalf("admins GetByID failed: %v", err)
	}
	if got.Name != "User" || admin.Name != "Admin" {
		t.Errorf("model namespaces collided: users=%+v admins=%+v", got, admin)
	}
}

// TestDisabledContainerPassesThrough checks the degraded path end to end.
func TestDisabledContainerPassesThrough(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.Enabled = false
	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() error = %v", err)
	}

	mockRepo := newMockUserRepository()
	ctx := context.Background()
	if _, err := mockRepo.Create(ctx, User{ID: "u-1", Name: "User"}); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	cachedRepo := NewCachedRepository(container, mockRepo)
	for i := 0; i < 3; i++ {
		if _, err := cachedRepo.GetByID(ctx, "u-1"); err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
	}
	if got := mockRepo.getCallCount("GetByID"); got != 3 {
		t.Errorf("disabled cache base calls = %d, want 3", got)
	}
}
