package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lumacrm/luma/modules/records/domain/ports"
	"github.com/lumacrm/luma/modules/records/domain/types"
	schematypes "github.com/lumacrm/luma/modules/schema/domain/types"
	schemaservices "github.com/lumacrm/luma/modules/schema/services"
	"github.com/lumacrm/luma/pkg/apperr"
	"github.com/lumacrm/luma/pkg/lifecycle"
)

type schemaServiceStub struct {
	resolveFn    func(ctx context.Context, tenantID string, code string) (schematypes.SubModule, error)
	listFieldsFn func(ctx context.Context, tenantID string, subModuleID string) ([]schematypes.SubModuleField, error)
}

func (s *schemaServiceStub) CreateSubModule(context.Context, string, schemaservices.CreateSubModuleRequest) (schematypes.SubModule, error) {
	return schematypes.SubModule{}, errors.New("CreateSubModule not mocked")
}

func (s *schemaServiceStub) ListSubModules(context.Context, string) ([]schematypes.SubModule, error) {
	return nil, errors.New("ListSubModules not mocked")
}

func (s *schemaServiceStub) ResolveSubModule(ctx context.Context, tenantID string, code string) (schematypes.SubModule, error) {
	if s.resolveFn == nil {
		return schematypes.SubModule{}, errors.New("ResolveSubModule not mocked")
	}
	return s.resolveFn(ctx, tenantID, code)
}

func (s *schemaServiceStub) ListFields(ctx context.Context, tenantID string, subModuleID string) ([]schematypes.SubModuleField, error) {
	if s.listFieldsFn == nil {
		return nil, errors.New("ListFields not mocked")
	}
	return s.listFieldsFn(ctx, tenantID, subModuleID)
}

func (s *schemaServiceStub) ApplySchema(context.Context, string, string, []schemaservices.FieldSpec) ([]schematypes.SubModuleField, error) {
	return nil, errors.New("ApplySchema not mocked")
}

type recordStoreStub struct {
	insertFn     func(ctx context.Context, rec types.Record) (types.Record, error)
	findFn       func(ctx context.Context, tenantID, subModuleID, recordID string) (types.Record, error)
	listFn       func(ctx context.Context, tenantID, subModuleID string, offset, limit int, sort ports.SortKey) ([]types.Record, int, error)
	updateFn     func(ctx context.Context, tenantID, subModuleID, recordID string, payload map[string]any) (types.Record, error)
	softDeleteFn func(ctx context.Context, tenantID, subModuleID, recordID string) (bool, error)
}

func (s *recordStoreStub) InsertRecord(ctx context.Context, rec types.Record) (types.Record, error) {
	if s.insertFn == nil {
		return types.Record{}, errors.New("InsertRecord not mocked")
	}
	return s.insertFn(ctx, rec)
}

func (s *recordStoreStub) FindRecord(ctx context.Context, tenantID, subModuleID, recordID string) (types.Record, error) {
	if s.findFn == nil {
		return types.Record{}, errors.New("FindRecord not mocked")
	}
	return s.findFn(ctx, tenantID, subModuleID, recordID)
}

func (s *recordStoreStub) ListRecords(ctx context.Context, tenantID, subModuleID string, offset, limit int, sort ports.SortKey) ([]types.Record, int, error) {
	if s.listFn == nil {
		return nil, 0, errors.New("ListRecords not mocked")
	}
	return s.listFn(ctx, tenantID, subModuleID, offset, limit, sort)
}

func (s *recordStoreStub) UpdateRecordPayload(ctx context.Context, tenantID, subModuleID, recordID string, payload map[string]any) (types.Record, error) {
	if s.updateFn == nil {
		return types.Record{}, errors.New("UpdateRecordPayload not mocked")
	}
	return s.updateFn(ctx, tenantID, subModuleID, recordID, payload)
}

func (s *recordStoreStub) SoftDeleteRecord(ctx context.Context, tenantID, subModuleID, recordID string) (bool, error) {
	if s.softDeleteFn == nil {
		return false, errors.New("SoftDeleteRecord not mocked")
	}
	return s.softDeleteFn(ctx, tenantID, subModuleID, recordID)
}

type capturePublisher struct {
	events []lifecycle.Event
}

func (c *capturePublisher) Publish(ev lifecycle.Event) { c.events = append(c.events, ev) }

func resolveTo(sm schematypes.SubModule) *schemaServiceStub {
	return &schemaServiceStub{
		resolveFn: func(context.Context, string, string) (schematypes.SubModule, error) {
			return sm, nil
		},
	}
}

func withNewUUID(t *testing.T, fn func() (string, error)) {
	t.Helper()
	prev := newUUID
	newUUID = fn
	t.Cleanup(func() { newUUID = prev })
}

var leadsModule = schematypes.SubModule{ID: "sm-1", TenantID: "t1", Code: "leads", Name: "Leads"}

const (
	recID  = "018f3a1e-6f2a-7d3e-8a4b-1c9d0e11a2b3"
	goneID = "018f3a1e-6f2a-7d3e-8a4b-ffffffffffff"
)

func TestListDefaultsPageAndSize(t *testing.T) {
	schemas := resolveTo(leadsModule)

	var gotOffset, gotLimit int
	var gotSort ports.SortKey
	store := &recordStoreStub{
		listFn: func(_ context.Context, tenantID, subModuleID string, offset, limit int, sort ports.SortKey) ([]types.Record, int, error) {
			if tenantID != "t1" || subModuleID != "sm-1" {
				t.Fatalf("scope = (%s,%s)", tenantID, subModuleID)
			}
			gotOffset, gotLimit, gotSort = offset, limit, sort
			return []types.Record{{ID: recID}}, 41, nil
		},
	}

	svc := NewRecordService(schemas, store, nil)
	page, err := svc.List(context.Background(), "t1", "leads", types.ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotOffset != 0 || gotLimit != 20 {
		t.Errorf("offset/limit = %d/%d, want 0/20", gotOffset, gotLimit)
	}
	if gotSort.Column != "created_at" || !gotSort.Desc {
		t.Errorf("default sort = %+v, want created_at desc", gotSort)
	}
	if page.Page != 1 || page.PageSize != 20 || page.Total != 41 || page.TotalPages != 3 {
		t.Errorf("page meta = %+v", page)
	}
}

func TestListComputesOffset(t *testing.T) {
	schemas := resolveTo(leadsModule)
	var gotOffset, gotLimit int
	store := &recordStoreStub{
		listFn: func(_ context.Context, _, _ string, offset, limit int, _ ports.SortKey) ([]types.Record, int, error) {
			gotOffset, gotLimit = offset, limit
			return nil, 0, nil
		},
	}

	svc := NewRecordService(schemas, store, nil)
	if _, err := svc.List(context.Background(), "t1", "leads", types.ListQuery{Page: 3, PageSize: 10}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotOffset != 20 || gotLimit != 10 {
		t.Errorf("offset/limit = %d/%d, want 20/10", gotOffset, gotLimit)
	}
}

func TestListSortByPayloadKey(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return []schematypes.SubModuleField{
			{DBName: "amount", FieldType: schematypes.FieldTypeNumber},
		}, nil
	}
	var gotSort ports.SortKey
	store := &recordStoreStub{
		listFn: func(_ context.Context, _, _ string, _, _ int, sort ports.SortKey) ([]types.Record, int, error) {
			gotSort = sort
			return nil, 0, nil
		},
	}

	svc := NewRecordService(schemas, store, nil)
	if _, err := svc.List(context.Background(), "t1", "leads", types.ListQuery{SortField: "amount", SortDir: "desc"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotSort.JSONKey != "amount" || gotSort.Column != "" || !gotSort.Desc {
		t.Errorf("sort = %+v, want payload key amount desc", gotSort)
	}
}

func TestListRejectsUnknownSortField(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return nil, nil
	}

	svc := NewRecordService(schemas, &recordStoreStub{}, nil)
	_, err := svc.List(context.Background(), "t1", "leads", types.ListQuery{SortField: "payload'; drop table"})
	if !apperr.IsBadRequest(err) {
		t.Fatalf("err = %v, want bad request", err)
	}
}

func TestListUnknownModule(t *testing.T) {
	schemas := &schemaServiceStub{
		resolveFn: func(context.Context, string, string) (schematypes.SubModule, error) {
			return schematypes.SubModule{}, apperr.NewNotFound("module %q not found", "nope")
		},
	}

	svc := NewRecordService(schemas, &recordStoreStub{}, nil)
	_, err := svc.List(context.Background(), "t1", "nope", types.ListQuery{})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestCreateValidatesAndPublishes(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return []schematypes.SubModuleField{
			{DBName: "name", FieldType: schematypes.FieldTypeText, IsRequired: true},
			{DBName: "amount", FieldType: schematypes.FieldTypeNumber},
		}, nil
	}

	var inserted types.Record
	store := &recordStoreStub{
		insertFn: func(_ context.Context, rec types.Record) (types.Record, error) {
			inserted = rec
			return rec, nil
		},
	}
	pub := &capturePublisher{}
	withNewUUID(t, func() (string, error) { return "rec-1", nil })

	svc := NewRecordService(schemas, store, pub)
	rec, err := svc.Create(context.Background(), "t1", "leads", "u1", map[string]any{"name": "Ada", "amount": "12"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "rec-1" || inserted.SubModuleID != "sm-1" || inserted.TenantID != "t1" || inserted.CreatedBy != "u1" {
		t.Errorf("inserted = %+v", inserted)
	}
	if inserted.Payload["amount"] != float64(12) {
		t.Errorf("amount = %v, want normalized 12", inserted.Payload["amount"])
	}
	if len(pub.events) != 1 || pub.events[0].Kind != lifecycle.RecordCreated || pub.events[0].RecordID != "rec-1" {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestCreateValidationFailureSkipsStore(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return []schematypes.SubModuleField{
			{DBName: "email", FieldType: schematypes.FieldTypeText, IsRequired: true},
		}, nil
	}

	svc := NewRecordService(schemas, &recordStoreStub{}, nil)
	_, err := svc.Create(context.Background(), "t1", "leads", "u1", map[string]any{})
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want validation", err)
	}
	ferrs := apperr.ValidationFields(err)
	if len(ferrs) != 1 || ferrs[0].Field != "email" || ferrs[0].Reason != "required" {
		t.Fatalf("field errors = %v", ferrs)
	}
}

func TestCreateNilPayload(t *testing.T) {
	svc := NewRecordService(resolveTo(leadsModule), &recordStoreStub{}, nil)
	_, err := svc.Create(context.Background(), "t1", "leads", "u1", nil)
	if !apperr.IsBadRequest(err) {
		t.Fatalf("err = %v, want bad request", err)
	}
}

func TestGetNotFound(t *testing.T) {
	schemas := resolveTo(leadsModule)
	store := &recordStoreStub{
		findFn: func(context.Context, string, string, string) (types.Record, error) {
			return types.Record{}, ports.ErrRecordNotFound
		},
	}

	svc := NewRecordService(schemas, store, nil)
	_, err := svc.Get(context.Background(), "t1", "leads", goneID)
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdateReplacesWholePayload(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return []schematypes.SubModuleField{
			{DBName: "name", FieldType: schematypes.FieldTypeText, IsRequired: true},
			{DBName: "amount", FieldType: schematypes.FieldTypeNumber},
		}, nil
	}

	var savedPayload map[string]any
	store := &recordStoreStub{
		findFn: func(context.Context, string, string, string) (types.Record, error) {
			return types.Record{ID: recID, Payload: map[string]any{"name": "Ada", "amount": float64(5)}}, nil
		},
		updateFn: func(_ context.Context, _, _, recordID string, payload map[string]any) (types.Record, error) {
			savedPayload = payload
			return types.Record{ID: recordID, Payload: payload}, nil
		},
	}
	pub := &capturePublisher{}

	svc := NewRecordService(schemas, store, pub)
	_, err := svc.Update(context.Background(), "t1", "leads", "u1", recID, map[string]any{"name": "Grace", "notes": "vip"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	// Full replace: amount was not resent, so it is gone from the saved document.
	if savedPayload["name"] != "Grace" || savedPayload["notes"] != "vip" {
		t.Errorf("saved payload = %v", savedPayload)
	}
	if _, ok := savedPayload["amount"]; ok {
		t.Errorf("amount survived a full-replace update: %v", savedPayload)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != lifecycle.RecordUpdated {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestUpdateValidatesRequestPayload(t *testing.T) {
	schemas := resolveTo(leadsModule)
	schemas.listFieldsFn = func(context.Context, string, string) ([]schematypes.SubModuleField, error) {
		return []schematypes.SubModuleField{
			{DBName: "name", FieldType: schematypes.FieldTypeText, IsRequired: true},
		}, nil
	}
	store := &recordStoreStub{
		findFn: func(context.Context, string, string, string) (types.Record, error) {
			return types.Record{ID: recID, Payload: map[string]any{"name": "Ada"}}, nil
		},
	}

	svc := NewRecordService(schemas, store, nil)
	// The stored name does not rescue a request that omits it.
	_, err := svc.Update(context.Background(), "t1", "leads", "u1", recID, map[string]any{})
	fields := apperr.ValidationFields(err)
	if len(fields) != 1 || fields[0].Field != "name" || fields[0].Reason != "required" {
		t.Fatalf("fields = %+v err = %v", fields, err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	schemas := resolveTo(leadsModule)
	store := &recordStoreStub{
		findFn: func(context.Context, string, string, string) (types.Record, error) {
			return types.Record{}, ports.ErrRecordNotFound
		},
	}

	svc := NewRecordService(schemas, store, nil)
	_, err := svc.Update(context.Background(), "t1", "leads", "u1", goneID, map[string]any{"name": "X"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDeletePublishesOnlyWhenRowMarked(t *testing.T) {
	schemas := resolveTo(leadsModule)
	pub := &capturePublisher{}

	marked := true
	store := &recordStoreStub{
		softDeleteFn: func(context.Context, string, string, string) (bool, error) {
			return marked, nil
		},
	}

	svc := NewRecordService(schemas, store, pub)
	if err := svc.Delete(context.Background(), "t1", "leads", "u1", recID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Kind != lifecycle.RecordDeleted {
		t.Fatalf("events = %+v", pub.events)
	}

	// Second delete is a no-op: success, no second event.
	marked = false
	if err := svc.Delete(context.Background(), "t1", "leads", "u1", recID); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events after repeat = %+v", pub.events)
	}
}

func TestGetMalformedIDIsNotFound(t *testing.T) {
	schemas := resolveTo(leadsModule)
	// No findFn: reaching the store with a malformed id would fail the test.
	svc := NewRecordService(schemas, &recordStoreStub{}, nil)

	_, err := svc.Get(context.Background(), "t1", "leads", "abc")
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdateMalformedIDIsNotFound(t *testing.T) {
	schemas := resolveTo(leadsModule)
	svc := NewRecordService(schemas, &recordStoreStub{}, nil)

	_, err := svc.Update(context.Background(), "t1", "leads", "u1", "1; DROP TABLE sub_module_records", map[string]any{"name": "X"})
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDeleteMalformedIDSucceedsWithoutStore(t *testing.T) {
	schemas := resolveTo(leadsModule)
	pub := &capturePublisher{}
	svc := NewRecordService(schemas, &recordStoreStub{}, pub)

	if err := svc.Delete(context.Background(), "t1", "leads", "u1", "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("events = %+v", pub.events)
	}
}

// schemaFixtureStore is a stateful in-memory schema store so the real
// SchemaService can drive field replacement in front of the record service.
type schemaFixtureStore struct {
	sm     schematypes.SubModule
	fields []schematypes.SubModuleField
}

func (s *schemaFixtureStore) InsertSubModule(context.Context, schematypes.SubModule) (schematypes.SubModule, error) {
	return schematypes.SubModule{}, errors.New("InsertSubModule not mocked")
}

func (s *schemaFixtureStore) ListSubModules(context.Context, string) ([]schematypes.SubModule, error) {
	return nil, errors.New("ListSubModules not mocked")
}

func (s *schemaFixtureStore) FindSubModuleByCode(context.Context, string, string) (schematypes.SubModule, error) {
	return s.sm, nil
}

func (s *schemaFixtureStore) FindSubModuleByID(context.Context, string, string) (schematypes.SubModule, error) {
	return s.sm, nil
}

func (s *schemaFixtureStore) ListFields(context.Context, string, string) ([]schematypes.SubModuleField, error) {
	return s.fields, nil
}

func (s *schemaFixtureStore) ReplaceFields(_ context.Context, _ string, _ string, fields []schematypes.SubModuleField) ([]schematypes.SubModuleField, error) {
	s.fields = fields
	return fields, nil
}

func TestNarrowedSchemaKeepsStoredKeysReadable(t *testing.T) {
	ctx := context.Background()
	schemaStore := &schemaFixtureStore{sm: leadsModule}
	schemas := schemaservices.NewSchemaService(schemaStore, nil)

	if _, err := schemas.ApplySchema(ctx, "t1", leadsModule.ID, []schemaservices.FieldSpec{
		{Name: "Name", DBName: "name", FieldType: schematypes.FieldTypeText, IsRequired: true},
		{Name: "Legacy Ref", DBName: "legacy_ref", FieldType: schematypes.FieldTypeText},
	}); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}

	var stored types.Record
	store := &recordStoreStub{
		insertFn: func(_ context.Context, rec types.Record) (types.Record, error) {
			stored = rec
			return rec, nil
		},
		findFn: func(context.Context, string, string, string) (types.Record, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, _, _, _ string, payload map[string]any) (types.Record, error) {
			stored.Payload = payload
			return stored, nil
		},
	}
	svc := NewRecordService(schemas, store, nil)

	withNewUUID(t, func() (string, error) { return recID, nil })
	if _, err := svc.Create(ctx, "t1", "leads", "u1", map[string]any{"name": "Ada", "legacy_ref": "LR-7"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Narrow the schema to just name; legacy_ref becomes an unmapped key.
	if _, err := schemas.ApplySchema(ctx, "t1", leadsModule.ID, []schemaservices.FieldSpec{
		{Name: "Name", DBName: "name", FieldType: schematypes.FieldTypeText, IsRequired: true},
	}); err != nil {
		t.Fatalf("narrowing ApplySchema: %v", err)
	}

	got, err := svc.Get(ctx, "t1", "leads", recID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Payload["legacy_ref"] != "LR-7" {
		t.Fatalf("payload after narrowing = %v, legacy_ref must stay readable", got.Payload)
	}

	// Resaving the full payload keeps the unmapped key too.
	upd, err := svc.Update(ctx, "t1", "leads", "u1", recID, map[string]any{"name": "Grace", "legacy_ref": "LR-7"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Payload["legacy_ref"] != "LR-7" || upd.Payload["name"] != "Grace" {
		t.Fatalf("payload after update = %v", upd.Payload)
	}
}
