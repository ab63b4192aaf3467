package schema

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nlquery/nlquery/internal/connector"
	"github.com/nlquery/nlquery/internal/source"
	"github.com/nlquery/nlquery/internal/storage/fs"
)

var shop = source.RelationalConfig{Host: "db", User: "app", Database: "shop"}

func TestCacheHitSkipsIntrospection(t *testing.T) {
	objects, err := fs.New(t.TempDir())
	if err != nil {
		t.Fatalf("fs.New() error = %v", err)
	}
	intro := &fakeIntrospector{relational: Description{"orders": {"id", "amount", "created_at"}}}
	cache := NewCache(NewRecordStore(objects), intro, nil)

	first, err := cache.Get(context.Background(), source.NewRelational(shop))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := cache.Get(context.Background(), source.NewRelational(shop))
	if err != nil {
		t.Fatalf("Get() second error = %v", err)
	}
	if intro.relationalCalls != 1 {
		t.Fatalf("introspection calls = %d, want 1", intro.relationalCalls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("descriptions differ: %v vs %v", first, second)
	}
}

func TestCacheMissOnIdentityChangeOverwrites(t *testing.T) {
	store := newMemoryStore()
	intro := &fakeIntrospector{relational: Description{"orders": {"id"}}}
	cache := NewCache(store, intro, nil)

	if _, err := cache.Get(context.Background(), source.NewRelational(shop)); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	other := shop
	other.Database = "crm"
	intro.relational = Description{"leads": {"id", "email"}}
	got, err := cache.Get(context.Background(), source.NewRelational(other))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if intro.relationalCalls != 2 {
		t.Fatalf("introspection calls = %d, want 2", intro.relationalCalls)
	}
	if !reflect.DeepEqual(got, Description{"leads": {"id", "email"}}) {
		t.Fatalf("Get() = %v", got)
	}
	if store.records[source.KindRelational].Database != "crm" {
		t.Fatalf("stored record = %#v", store.records[source.KindRelational])
	}
	if store.saves != 2 {
		t.Fatalf("saves = %d, want 2", store.saves)
	}
}

func TestCacheMissOnSameNameDifferentPath(t *testing.T) {
	store := newMemoryStore()
	intro := &fakeIntrospector{tabular: Description{"East": {"city"}}}
	cache := NewCache(store, intro, nil)

	if _, err := cache.Get(context.Background(), source.NewTabular("/data/east/sales.xlsx")); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	intro.tabular = Description{"West": {"region", "units"}}
	got, err := cache.Get(context.Background(), source.NewTabular("/data/west/sales.xlsx"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if intro.tabularCalls != 2 {
		t.Fatalf("introspection calls = %d, want 2", intro.tabularCalls)
	}
	if !reflect.DeepEqual(got, Description{"West": {"region", "units"}}) {
		t.Fatalf("Get() = %v", got)
	}
	if loc := store.records[source.KindTabular].Location; loc != "/data/west/sales.xlsx" {
		t.Fatalf("stored location = %q", loc)
	}
}

func TestCacheRefreshAlwaysIntrospects(t *testing.T) {
	store := newMemoryStore()
	intro := &fakeIntrospector{tabular: Description{"Sales": {"city", "revenue"}}}
	cache := NewCache(store, intro, nil)
	cfg := source.NewTabular("/data/sales.xlsx")

	for i := 0; i < 2; i++ {
		if _, err := cache.Refresh(context.Background(), cfg); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}
	if intro.tabularCalls != 2 || store.saves != 2 {
		t.Fatalf("calls = %d saves = %d", intro.tabularCalls, store.saves)
	}
}

func TestCacheCombinedUsesBothSlots(t *testing.T) {
	store := newMemoryStore()
	intro := &fakeIntrospector{
		relational: Description{"orders": {"id"}},
		tabular:    Description{"Sales": {"city"}},
	}
	cache := NewCache(store, intro, nil)
	cfg := source.NewCombined(shop, "/data/sales.xlsx")

	combined, err := cache.GetCombined(context.Background(), cfg)
	if err != nil {
		t.Fatalf("GetCombined() error = %v", err)
	}
	if !reflect.DeepEqual(combined.Relational, intro.relational) || !reflect.DeepEqual(combined.Tabular, intro.tabular) {
		t.Fatalf("GetCombined() = %#v", combined)
	}
	if store.records[source.KindTabular].Database != "sales.xlsx" {
		t.Fatalf("tabular record = %#v", store.records[source.KindTabular])
	}
	if _, err := cache.Get(context.Background(), cfg); err == nil {
		t.Fatal("Get() on combined source expected error")
	}
}

func TestCacheDoesNotPersistFailedIntrospection(t *testing.T) {
	store := newMemoryStore()
	intro := &fakeIntrospector{err: connector.ErrUnreachable}
	cache := NewCache(store, intro, nil)
	_, err := cache.Get(context.Background(), source.NewRelational(shop))
	if !errors.Is(err, connector.ErrUnreachable) {
		t.Fatalf("Get() error = %v", err)
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d, want 0", store.saves)
	}
}

func TestCacheToleratesSaveFailure(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("disk full")
	intro := &fakeIntrospector{relational: Description{"orders": {"id"}}}
	got, err := NewCache(store, intro, nil).Get(context.Background(), source.NewRelational(shop))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got["orders"]) != 1 {
		t.Fatalf("Get() = %v", got)
	}
}

func TestRecordStorePersistsDocumentedFormat(t *testing.T) {
	dir := t.TempDir()
	objects, err := fs.New(dir)
	if err != nil {
		t.Fatalf("fs.New() error = %v", err)
	}
	store := NewRecordStore(objects)
	record := Record{Database: "shop", DBType: "relational", Schema: Description{"orders": {"id", "amount"}}}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "schema_relational.json"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"database", "db_type", "schema"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("record missing %q: %s", key, raw)
		}
	}
	loaded, err := store.Load(context.Background(), source.KindRelational)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(loaded, record) {
		t.Fatalf("Load() = %#v", loaded)
	}
	if _, err := store.Load(context.Background(), source.KindTabular); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Load(tabular) error = %v", err)
	}
}

func TestRecordStoreTreatsCorruptRecordAsMissing(t *testing.T) {
	objects := &brokenObjects{body: "{not json"}
	_, err := NewRecordStore(objects).Load(context.Background(), source.KindTabular)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestRecordStoreSurfacesBackendErrors(t *testing.T) {
	objects := &brokenObjects{err: errors.New("bucket unavailable")}
	store := NewRecordStore(objects)
	if _, err := store.Load(context.Background(), source.KindTabular); err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Load() error = %v", err)
	}
	if err := store.Save(context.Background(), Record{DBType: "tabular"}); err == nil {
		t.Fatal("Save() expected error")
	}
}

type fakeIntrospector struct {
	relational      Description
	tabular         Description
	err             error
	relationalCalls int
	tabularCalls    int
}

func (f *fakeIntrospector) Relational(context.Context, source.RelationalConfig) (Description, error) {
	f.relationalCalls++
	return f.relational, f.err
}

func (f *fakeIntrospector) Tabular(context.Context, source.TabularConfig) (Description, error) {
	f.tabularCalls++
	return f.tabular, f.err
}

type memoryStore struct {
	records map[source.Kind]Record
	saves   int
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[source.Kind]Record{}}
}

func (m *memoryStore) Load(_ context.Context, kind source.Kind) (Record, error) {
	record, ok := m.records[kind]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}

func (m *memoryStore) Save(_ context.Context, record Record) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[source.Kind(record.DBType)] = record
	return nil
}

type brokenObjects struct {
	body string
	err  error
}

func (b *brokenObjects) Read(context.Context, string) ([]byte, error) {
	return []byte(b.body), b.err
}

func (b *brokenObjects) Write(context.Context, string, []byte, string) error {
	return b.err
}
