package repositorycache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/goliatone/go-entity-cache/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// User is the test model for decorator tests.
type User struct {
	ID    string `json:"id" bun:"id,pk"`
	Name  string `json:"name" bun:"name"`
	Email string `json:"email" bun:"email"`
}

// mockUserRepository is an in-memory fake of the base repository. Call
// counts per method let tests assert whether a read was served from cache
// or hit the source.
type mockUserRepository struct {
	mu        sync.RWMutex
	users     map[string]User
	callCount map[string]int
	failGet   error
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
	if m.failGet != nil {
		return User{}, m.failGet
	}
	user, exists := m.users[id]
	if !exists {
		return User{}, errors.New("user not found")
	}
	return user, nil
}

func (m *mockUserRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (User, error) {
	m.trackCall("Get")
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		return user, nil
	}
	return User{}, errors.New("no users found")
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

func (m *mockUserRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (User, error) {
	m.trackCall("GetByIdentifier")
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Email == identifier {
			return user, nil
		}
	}
	return User{}, errors.New("user not found")
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

func (m *mockUserRepository) Delete(ctx context.Context, user User) error {
	m.trackCall("Delete")
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, user.ID)
	return nil
}

func (m *mockUserRepository) CreateTx(ctx context.Context, tx bun.IDB, record User, criteria ...repository.InsertCriteria) (User, error) {
	return m.Create(ctx, record, criteria...)
}
func (m *mockUserRepository) CreateMany(ctx context.Context, records []User, criteria ...repository.InsertCriteria) ([]User, error) {
	for _, record := range records {
		if _, err := m.Create(ctx, record, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}
func (m *mockUserRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []User, criteria ...repository.InsertCriteria) ([]User, error) {
	return m.CreateMany(ctx, records, criteria...)
}
func (m *mockUserRepository) GetOrCreate(ctx context.Context, record User) (User, error) {
	m.mu.RLock()
	existing, exists := m.users[record.ID]
	m.mu.RUnlock()
	if exists {
		return existing, nil
	}
	return m.Create(ctx, record)
}
func (m *mockUserRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record User) (User, error) {
	return m.GetOrCreate(ctx, record)
}
func (m *mockUserRepository) UpdateTx(ctx context.Context, tx bun.IDB, record User, criteria ...repository.UpdateCriteria) (User, error) {
	return m.Update(ctx, record, criteria...)
}
func (m *mockUserRepository) UpdateMany(ctx context.Context, records []User, criteria ...repository.UpdateCriteria) ([]User, error) {
	for _, record := range records {
		if _, err := m.Update(ctx, record, criteria...); err != nil {
			return nil, err
		}
	}
	return records, nil
}
func (m *mockUserRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []User, criteria ...repository.UpdateCriteria) ([]User, error) {
	return m.UpdateMany(ctx, records, criteria...)
}
func (m *mockUserRepository) Upsert(ctx context.Context, record User, criteria ...repository.UpdateCriteria) (User, error) {
	return m.Update(ctx, record, criteria...)
}
func (m *mockUserRepository) UpsertTx(ctx context.Context, tx bun.IDB, record User, criteria ...repository.UpdateCriteria) (User, error) {
	return m.Upsert(ctx, record, criteria...)
}
func (m *mockUserRepository) UpsertMany(ctx context.Context, records []User, criteria ...repository.UpdateCriteria) ([]User, error) {
	return m.UpdateMany(ctx, records, criteria...)
}
func (m *mockUserRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []User, criteria ...repository.UpdateCriteria) ([]User, error) {
	return m.UpsertMany(ctx, records, criteria...)
}
func (m *mockUserRepository) DeleteTx(ctx context.Context, tx bun.IDB, record User) error {
	return m.Delete(ctx, record)
}
func (m *mockUserRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.trackCall("DeleteMany")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]User)
	return nil
}
func (m *mockUserRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteMany(ctx, criteria...)
}
func (m *mockUserRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return m.DeleteMany(ctx, criteria...)
}
func (m *mockUserRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return m.DeleteWhere(ctx, criteria...)
}
func (m *mockUserRepository) ForceDelete(ctx context.Context, record User) error {
	return m.Delete(ctx, record)
}
func (m *mockUserRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record User) error {
	return m.ForceDelete(ctx, record)
}
func (m *mockUserRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (User, error) {
	return m.Get(ctx, criteria...)
}
func (m *mockUserRepository) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (User, error) {
	return m.GetByID(ctx, id, criteria...)
}
func (m *mockUserRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]User, int, error) {
	return m.List(ctx, criteria...)
}
func (m *mockUserRepository) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return m.Count(ctx, criteria...)
}
func (m *mockUserRepository) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (User, error) {
	return m.GetByIdentifier(ctx, identifier, criteria...)
}
func (m *mockUserRepository) Raw(ctx context.Context, sql string, args ...any) ([]User, error) {
	m.trackCall("Raw")
	return nil, errors.New("raw queries not supported in mock")
}
func (m *mockUserRepository) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]User, error) {
	return m.Raw(ctx, sql, args...)
}
func (m *mockUserRepository) Handlers() repository.ModelHandlers[User] {
	return repository.ModelHandlers[User]{}
}

var _ repository.Repository[User] = (*mockUserRepository)(nil)

func newTestManager(t *testing.T) *cache.Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.New(cache.DefaultConfig(), cache.WithLogger(log))
}

func newCachedRepo(t *testing.T, mock *mockUserRepository, opts ...Option[User]) *CachedRepository[User] {
	t.Helper()
	return New[User](mock, newTestManager(t), cache.NewDefaultKeySerializer(), opts...)
}

func seedUser(t *testing.T, mock *mockUserRepository, user User) {
	t.Helper()
	if _, err := mock.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	// Drop the seeding call so assertions count decorator traffic only.
	mock.mu.Lock()
	mock.callCount = make(map[string]int)
	mock.mu.Unlock()
}

func TestCachedRepository_GetByIDServesFromCache(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice", Email: "alice@example.com"})
	repo := newCachedRepo(t, mock)

	first, err := repo.GetByID(ctx, "u-1")
	if err != nil {
		t.Fatalf("first GetByID error = %v", err)
	}
	second, err := repo.GetByID(ctx, "u-1")
	if err != nil {
		t.Fatalf("second GetByID error = %v", err)
	}

	if first != second {
		t.Errorf("cached read differs: %+v vs %+v", first, second)
	}
	if got := mock.getCallCount("GetByID"); got != 1 {
		t.Errorf("base GetByID called %d times, want 1 (second read from cache)", got)
	}
}

func TestCachedRepository_GetByIDWithCriteriaBypassesCache(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})
	repo := newCachedRepo(t, mock)

	passthrough := func(q *bun.SelectQuery) *bun.SelectQuery { return q }
	for i := 0; i < 2; i++ {
		if _, err := repo.GetByID(ctx, "u-1", passthrough); err != nil {
			t.Fatalf("GetByID with criteria error = %v", err)
		}
	}
	if got := mock.getCallCount("GetByID"); got != 2 {
		t.Errorf("criteria reads must hit the base every time, got %d calls", got)
	}
}

func TestCachedRepository_GetByIDErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	repo := newCachedRepo(t, mock)

	for i := 0; i < 2; i++ {
		if _, err := repo.GetByID(ctx, "missing"); err == nil {
			t.Fatal("GetByID of an absent record should error")
		}
	}
	if got := mock.getCallCount("GetByID"); got != 2 {
		t.Errorf("errors must not be cached, got %d base calls", got)
	}
}

func TestCachedRepository_UpdateInvalidatesEntity(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})
	repo := newCachedRepo(t, mock)

	if _, err := repo.GetByID(ctx, "u-1"); err != nil {
		t.Fatalf("priming GetByID error = %v", err)
	}

	updated := User{ID: "u-1", Name: "Alice Cooper"}
	if _, err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("Update error = %v", err)
	}

	got, err := repo.GetByID(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetByID after update error = %v", err)
	}
	if got.Name != "Alice Cooper" {
		t.Errorf("GetByID after update = %+v, stale cache entry survived", got)
	}
	if calls := mock.getCallCount("GetByID"); calls != 2 {
		t.Errorf("base GetByID called %d times, want 2 (re-fetch after invalidation)", calls)
	}
}

func TestCachedRepository_DeleteInvalidatesEntity(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	user := User{ID: "u-1", Name: "Alice"}
	seedUser(t, mock, user)
	repo := newCachedRepo(t, mock)

	if _, err := repo.GetByID(ctx, "u-1"); err != nil {
		t.Fatalf("priming GetByID error = %v", err)
	}
	if err := repo.Delete(ctx, user); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if _, err := repo.GetByID(ctx, "u-1"); err == nil {
		t.Error("GetByID after delete should miss the cache and error from the base")
	}
}

func TestCachedRepository_ListServesFromCache(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})
	repo := newCachedRepo(t, mock)

	records, total, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("first List error = %v", err)
	}
	if len(records) != 1 || total != 1 {
		t.Fatalf("first List = %d records, total %d", len(records), total)
	}

	if _, _, err := repo.List(ctx); err != nil {
		t.Fatalf("second List error = %v", err)
	}
	if got := mock.getCallCount("List"); got != 1 {
		t.Errorf("base List called %d times, want 1 (second read from cache)", got)
	}
}

func TestCachedRepository_CreateOrphansCachedLists(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})
	repo := newCachedRepo(t, mock)

	if _, _, err := repo.List(ctx); err != nil {
		t.Fatalf("priming List error = %v", err)
	}
	if _, err := repo.Create(ctx, User{ID: "u-2", Name: "Bob"}); err != nil {
		t.Fatalf("Create error = %v", err)
	}

	records, total, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List after create error = %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Errorf("List after create = %d records, total %d; version bump did not orphan the cached list", len(records), total)
	}
	if got := mock.getCallCount("List"); got != 2 {
		t.Errorf("base List called %d times, want 2", got)
	}
}

func TestCachedRepository_CountSharesListInvalidation(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1"})
	repo := newCachedRepo(t, mock)

	if total, err := repo.Count(ctx); err != nil || total != 1 {
		t.Fatalf("first Count = (%d, %v)", total, err)
	}
	if _, err := repo.Count(ctx); err != nil {
		t.Fatalf("second Count error = %v", err)
	}
	if got := mock.getCallCount("Count"); got != 1 {
		t.Errorf("base Count called %d times, want 1", got)
	}

	if _, err := repo.Create(ctx, User{ID: "u-2"}); err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if total, err := repo.Count(ctx); err != nil || total != 2 {
		t.Errorf("Count after create = (%d, %v), want (2, nil)", total, err)
	}
}

func TestCachedRepository_DeleteManyBumpsVersion(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1"})
	repo := newCachedRepo(t, mock)

	if _, _, err := repo.List(ctx); err != nil {
		t.Fatalf("priming List error = %v", err)
	}
	if err := repo.DeleteMany(ctx); err != nil {
		t.Fatalf("DeleteMany error = %v", err)
	}

	_, total, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List after DeleteMany error = %v", err)
	}
	if total != 0 {
		t.Errorf("List after DeleteMany total = %d, want 0", total)
	}
}

func TestCachedRepository_GetByIdentifierPrimesEntityKey(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice", Email: "alice@example.com"})
	repo := newCachedRepo(t, mock)

	user, err := repo.GetByIdentifier(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByIdentifier error = %v", err)
	}
	if user.ID != "u-1" {
		t.Fatalf("GetByIdentifier = %+v", user)
	}

	// The identifier fetch primed the primary-ID key; this read must not
	// touch the base repository.
	if _, err := repo.GetByID(ctx, "u-1"); err != nil {
		t.Fatalf("GetByID after identifier fetch error = %v", err)
	}
	if got := mock.getCallCount("GetByID"); got != 0 {
		t.Errorf("base GetByID called %d times, want 0 (primed by GetByIdentifier)", got)
	}
}

func TestCachedRepository_BindGroupSeparatesEntries(t *testing.T) {
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})
	repo := newCachedRepo(t, mock)

	primary := context.Background()
	replica := WithBindGroup(context.Background(), "replica")

	if _, err := repo.GetByID(primary, "u-1"); err != nil {
		t.Fatalf("primary GetByID error = %v", err)
	}
	if _, err := repo.GetByID(replica, "u-1"); err != nil {
		t.Fatalf("replica GetByID error = %v", err)
	}
	if got := mock.getCallCount("GetByID"); got != 2 {
		t.Errorf("base GetByID called %d times, want 2 (bind groups must not share entries)", got)
	}

	// Within a group the entry is shared.
	if _, err := repo.GetByID(replica, "u-1"); err != nil {
		t.Fatalf("second replica GetByID error = %v", err)
	}
	if got := mock.getCallCount("GetByID"); got != 2 {
		t.Errorf("base GetByID called %d times after repeat replica read, want 2", got)
	}
}

func TestCachedRepository_ModelName(t *testing.T) {
	mock := newMockUserRepository()
	repo := newCachedRepo(t, mock)
	if got := repo.Model(); got != "users" {
		t.Errorf("Model() = %q, want users", got)
	}

	named := newCachedRepo(t, mock, WithModelName[User]("accounts"))
	if got := named.Model(); got != "accounts" {
		t.Errorf("Model() with override = %q, want accounts", got)
	}
}

func TestCachedRepository_DisabledCachePassesThrough(t *testing.T) {
	ctx := context.Background()
	mock := newMockUserRepository()
	seedUser(t, mock, User{ID: "u-1", Name: "Alice"})

	cfg := cache.DefaultConfig()
	cfg.Enabled = false
	manager := cache.New(cfg, cache.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	repo := New[User](mock, manager, cache.NewDefaultKeySerializer())

	for i := 0; i < 3; i++ {
		if _, err := repo.GetByID(ctx, "u-1"); err != nil {
			t.Fatalf("GetByID error = %v", err)
		}
	}
	if got := mock.getCallCount("GetByID"); got != 3 {
		t.Errorf("disabled cache should pass every read through, got %d calls", got)
	}
}
