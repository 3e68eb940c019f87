package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/facet-dev/facet/internal/audit"
	"github.com/facet-dev/facet/internal/convert"
	"github.com/facet-dev/facet/internal/entity"
	"github.com/facet-dev/facet/internal/extid"
	"github.com/facet-dev/facet/internal/meta"
	"github.com/facet-dev/facet/internal/repo"
	"github.com/facet-dev/facet/internal/store"
)

// stubMetaStore serves a fixed projection tree
type stubMetaStore struct {
	projection *meta.ProjectionMetadata
}

func (s *stubMetaStore) LoadProjection(_ context.Context, name string) (*meta.ProjectionMetadata, error) {
	if s.projection != nil && s.projection.Name == name {
		return s.projection, nil
	}
	return nil, meta.ErrNotFound
}

func (s *stubMetaStore) LoadProjectionNames(context.Context) ([]string, error) { return nil, nil }

func (s *stubMetaStore) LoadFields(context.Context, string) ([]*meta.FieldMetadata, error) {
	return nil, nil
}

func (s *stubMetaStore) LoadEntity(_ context.Context, entityID string) (*meta.EntityMetadata, error) {
	if s.projection != nil {
		for _, e := range s.projection.Entities {
			if e.ID == entityID {
				return e, nil
			}
		}
	}
	return nil, meta.ErrNotFound
}

// memoryStore is an in-memory entity store and transaction handler
type memoryStore struct {
	records map[string]*entity.Record
	nextID  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*entity.Record)}
}

func (m *memoryStore) FindByID(_ context.Context, class *entity.Class, id string) (*entity.Record, error) {
	if rec, ok := m.records[id]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

func (m *memoryStore) Query(_ context.Context, class *entity.Class, filters map[string]interface{}, _ []store.SortKey, _, _ int) ([]*entity.Record, error) {
	var out []*entity.Record
	for _, rec := range m.records {
		if matches(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) Count(_ context.Context, class *entity.Class, filters map[string]interface{}) (int, error) {
	recs, _ := m.Query(nil, class, filters, nil, 0, 0)
	return len(recs), nil
}

func matches(rec *entity.Record, filters map[string]interface{}) bool {
	for col, want := range filters {
		if rec.Attributes()[col] != want {
			return false
		}
	}
	return true
}

func (m *memoryStore) Begin(context.Context) (store.Transaction, error) {
	return &memoryTx{store: m}, nil
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) Merge(_ context.Context, rec *entity.Record) error {
	if rec.ID() == "" {
		t.store.nextID++
		rec.SetID(fmt.Sprintf("gen-%d", t.store.nextID))
	}
	t.store.records[rec.ID()] = rec
	return nil
}

func (t *memoryTx) Flush(context.Context) error { return nil }
func (t *memoryTx) Commit() error               { return nil }
func (t *memoryTx) Rollback() error             { return nil }

func testServer(t *testing.T) (*httptest.Server, *memoryStore) {
	t.Helper()

	customer := entity.NewClass("Customer", "crm_customer")
	customer.TableID = "tbl-customer"
	customer.AddProperty(&entity.Property{Name: "id", Kind: entity.PropString})
	customer.AddProperty(&entity.Property{Name: "name", Kind: entity.PropString})
	customer.AddProperty(&entity.Property{Name: "status", Kind: entity.PropString})

	registry := entity.NewRegistry()
	require.NoError(t, registry.Register(customer))
	resolver := entity.NewResolver(registry)

	projection := &meta.ProjectionMetadata{
		ID:   "p-1",
		Name: "sales",
		Entities: []*meta.EntityMetadata{
			{
				ID:           "e-customer",
				Name:         "Customer",
				ExternalName: "customers",
				TableID:      "tbl-customer",
				REST:         true,
				Fields: []*meta.FieldMetadata{
					{Name: "name", Property: "name", Kind: meta.MappingDirect, Mandatory: true},
					{Name: "status", Property: "status", Kind: meta.MappingDirect},
				},
			},
			{
				ID:           "e-ledger",
				Name:         "Ledger",
				ExternalName: "ledger",
				TableID:      "tbl-ledger",
				REST:         false,
			},
		},
	}

	metaSvc := meta.NewService(&stubMetaStore{projection: projection}, nil)
	entityStore := newMemoryStore()
	mapper := extid.NewMemoryMapper()
	translator := extid.NewTranslator(mapper, metaSvc)
	converter := convert.NewConverter(metaSvc, resolver, entityStore, translator,
		convert.NewQualifierRegistry(), audit.NewStamper(nil), nil)
	repository := repo.New(metaSvc, resolver, entityStore, entityStore, converter,
		translator, mapper, nil, nil, nil)

	handler := NewHandler(repository, metaSvc, zap.NewNop())
	router := NewRouter(handler, zap.NewNop(), RouterConfig{APIPrefix: "/api"})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, entityStore
}

func seedCustomer(t *testing.T, ms *memoryStore, id, name, status string) {
	t.Helper()
	class := entity.NewClass("Customer", "crm_customer")
	class.TableID = "tbl-customer"
	class.AddProperty(&entity.Property{Name: "id", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "name", Kind: entity.PropString})
	class.AddProperty(&entity.Property{Name: "status", Kind: entity.PropString})

	rec := entity.NewRecord(class)
	rec.SetID(id)
	rec.Attributes()["name"] = name
	rec.Attributes()["status"] = status
	ms.records[id] = rec
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]string
	status := getJSON(t, srv.URL+"/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestListCustomers(t *testing.T) {
	srv, ms := testServer(t)
	seedCustomer(t, ms, "c-1", "Acme", "active")
	seedCustomer(t, ms, "c-2", "Beta", "inactive")

	var page struct {
		Items []map[string]interface{} `json:"items"`
		Total int                      `json:"total"`
	}
	status := getJSON(t, srv.URL+"/api/sales/customers?status=active&page=0&size=20", &page)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Acme", page.Items[0]["name"])
}

func TestGetCustomer(t *testing.T) {
	srv, ms := testServer(t)
	seedCustomer(t, ms, "c-1", "Acme", "active")

	var doc map[string]interface{}
	status := getJSON(t, srv.URL+"/api/sales/customers/c-1", &doc)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Acme", doc["name"])
}

func TestGetCustomerNotFound(t *testing.T) {
	srv, _ := testServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/sales/customers/ghost", nil))
}

func TestGetUnknownProjection(t *testing.T) {
	srv, _ := testServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/ghost/customers/c-1", nil))
}

func TestGetNotRESTExposedEntity(t *testing.T) {
	srv, _ := testServer(t)

	// The ledger entity exists but is not exposed over REST; it must be
	// indistinguishable from a missing resource.
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/sales/ledger/l-1", nil))
}

func TestCreateCustomer(t *testing.T) {
	srv, ms := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sales/customers", "application/json",
		strings.NewReader(`{"name":"Acme","status":"active"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Acme", doc["name"])

	_, stored := ms.records["gen-1"]
	assert.True(t, stored)
}

func TestCreateCustomerBatch(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sales/customers", "application/json",
		strings.NewReader(`[{"name":"One"},{"name":"Two"}]`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var docs []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&docs))
	assert.Len(t, docs, 2)
}

func TestCreateCustomerWithJSONPathSelector(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sales/customers?json_path=payload.customer", "application/json",
		strings.NewReader(`{"payload":{"customer":{"name":"Wrapped"}}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Wrapped", doc["name"])
}

func TestCreateCustomerEmptyBody(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sales/customers", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateCustomerMissingMandatoryField(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/sales/customers", "application/json",
		strings.NewReader(`{"status":"active"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateCustomerPathIDWins(t *testing.T) {
	srv, ms := testServer(t)
	seedCustomer(t, ms, "c-1", "Acme", "active")

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/sales/customers/c-1",
		strings.NewReader(`{"id":"other-id","name":"Acme Renamed"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Acme Renamed", doc["name"])

	rec, ok := ms.records["c-1"]
	require.True(t, ok)
	assert.Equal(t, "Acme Renamed", rec.Attributes()["name"])
}

func TestAdminCacheInvalidate(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Post(srv.URL+"/api/admin/cache/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	srv, _ := testServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))
}
