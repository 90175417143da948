package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lumacrm/luma/modules/records/domain/ports"
	"github.com/lumacrm/luma/modules/records/domain/types"
	schemaservices "github.com/lumacrm/luma/modules/schema/services"
	"github.com/lumacrm/luma/pkg/apperr"
	"github.com/lumacrm/luma/pkg/lifecycle"
	"github.com/lumacrm/luma/pkg/uuidv7"
)

var newUUID = uuidv7.NewString

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 200
)

// RecordService is the tenant-scoped CRUD surface over generic records. Every
// operation resolves the sub-module by code first, so a bad code fails with
// NotFound before any record table is touched.
type RecordService interface {
	List(ctx context.Context, tenantID string, code string, q types.ListQuery) (types.RecordPage, error)
	Get(ctx context.Context, tenantID string, code string, recordID string) (types.Record, error)
	Create(ctx context.Context, tenantID string, code string, actorID string, payload map[string]any) (types.Record, error)
	Update(ctx context.Context, tenantID string, code string, actorID string, recordID string, payload map[string]any) (types.Record, error)
	Delete(ctx context.Context, tenantID string, code string, actorID string, recordID string) error
}

type recordService struct {
	schemas schemaservices.SchemaService
	store   ports.RecordStore
	events  lifecycle.Publisher
}

func NewRecordService(schemas schemaservices.SchemaService, store ports.RecordStore, events lifecycle.Publisher) RecordService {
	if events == nil {
		events = lifecycle.NopPublisher{}
	}
	return &recordService{schemas: schemas, store: store, events: events}
}

func (s *recordService) List(ctx context.Context, tenantID string, code string, q types.ListQuery) (types.RecordPage, error) {
	sm, err := s.schemas.ResolveSubModule(ctx, tenantID, code)
	if err != nil {
		return types.RecordPage{}, err
	}

	page := q.Page
	if page < 1 {
		page = defaultPage
	}
	size := q.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	sort, err := s.sortKey(ctx, tenantID, sm.ID, q)
	if err != nil {
		return types.RecordPage{}, err
	}

	items, total, err := s.store.ListRecords(ctx, tenantID, sm.ID, (page-1)*size, size, sort)
	if err != nil {
		return types.RecordPage{}, err
	}

	totalPages := total / size
	if total%size != 0 {
		totalPages++
	}
	return types.RecordPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: totalPages,
	}, nil
}

// sortKey whitelists the sort field against real columns and the sub-module's
// declared storage keys. Anything else is a BadRequest, never raw SQL input.
func (s *recordService) sortKey(ctx context.Context, tenantID string, subModuleID string, q types.ListQuery) (ports.SortKey, error) {
	desc := false
	switch q.SortDir {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return ports.SortKey{}, apperr.NewBadRequest("sort direction %q is not asc or desc", q.SortDir)
	}

	switch q.SortField {
	case "":
		return ports.SortKey{Column: "created_at", Desc: true}, nil
	case "created_at", "updated_at":
		return ports.SortKey{Column: q.SortField, Desc: desc}, nil
	}

	fields, err := s.schemas.ListFields(ctx, tenantID, subModuleID)
	if err != nil {
		return ports.SortKey{}, err
	}
	for _, f := range fields {
		if f.DBName == q.SortField {
			return ports.SortKey{JSONKey: f.DBName, Desc: desc}, nil
		}
	}
	return ports.SortKey{}, apperr.NewBadRequest("unknown sort field %q", q.SortField)
}

// validRecordID screens ids arriving from URL paths. A malformed id can
// never match a row, so it is answered as unknown instead of being handed
// to the store's uuid cast, which would raise.
func validRecordID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *recordService) Get(ctx context.Context, tenantID string, code string, recordID string) (types.Record, error) {
	sm, err := s.schemas.ResolveSubModule(ctx, tenantID, code)
	if err != nil {
		return types.Record{}, err
	}
	if !validRecordID(recordID) {
		return types.Record{}, apperr.NewNotFound("record %q not found in module %q", recordID, code)
	}
	rec, err := s.store.FindRecord(ctx, tenantID, sm.ID, recordID)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return types.Record{}, apperr.NewNotFound("record %q not found in module %q", recordID, code)
		}
		return types.Record{}, err
	}
	return rec, nil
}

func (s *recordService) Create(ctx context.Context, tenantID string, code string, actorID string, payload map[string]any) (types.Record, error) {
	sm, err := s.schemas.ResolveSubModule(ctx, tenantID, code)
	if err != nil {
		return types.Record{}, err
	}
	if payload == nil {
		return types.Record{}, apperr.NewBadRequest("payload must be an object")
	}

	normalized, err := s.validate(ctx, tenantID, sm.ID, payload)
	if err != nil {
		return types.Record{}, err
	}

	id, err := newUUID()
	if err != nil {
		return types.Record{}, err
	}
	rec, err := s.store.InsertRecord(ctx, types.Record{
		ID:          id,
		SubModuleID: sm.ID,
		TenantID:    tenantID,
		Payload:     normalized,
		CreatedBy:   actorID,
	})
	if err != nil {
		return types.Record{}, err
	}

	s.publish(lifecycle.RecordCreated, tenantID, sm.Code, rec.ID, actorID, rec.Payload)
	return rec, nil
}

func (s *recordService) Update(ctx context.Context, tenantID string, code string, actorID string, recordID string, payload map[string]any) (types.Record, error) {
	sm, err := s.schemas.ResolveSubModule(ctx, tenantID, code)
	if err != nil {
		return types.Record{}, err
	}
	if payload == nil {
		return types.Record{}, apperr.NewBadRequest("payload must be an object")
	}
	if !validRecordID(recordID) {
		return types.Record{}, apperr.NewNotFound("record %q not found in module %q", recordID, code)
	}

	if _, err := s.store.FindRecord(ctx, tenantID, sm.ID, recordID); err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return types.Record{}, apperr.NewNotFound("record %q not found in module %q", recordID, code)
		}
		return types.Record{}, err
	}

	// Full replace: the caller resends the whole payload, keys absent from
	// the request do not survive from the stored document.
	normalized, err := s.validate(ctx, tenantID, sm.ID, payload)
	if err != nil {
		return types.Record{}, err
	}

	rec, err := s.store.UpdateRecordPayload(ctx, tenantID, sm.ID, recordID, normalized)
	if err != nil {
		if errors.Is(err, ports.ErrRecordNotFound) {
			return types.Record{}, apperr.NewNotFound("record %q not found in module %q", recordID, code)
		}
		return types.Record{}, err
	}

	s.publish(lifecycle.RecordUpdated, tenantID, sm.Code, rec.ID, actorID, rec.Payload)
	return rec, nil
}

// Delete is idempotent: deleting an already-deleted or never-existing record
// reports success so retried requests converge.
func (s *recordService) Delete(ctx context.Context, tenantID string, code string, actorID string, recordID string) error {
	sm, err := s.schemas.ResolveSubModule(ctx, tenantID, code)
	if err != nil {
		return err
	}
	if !validRecordID(recordID) {
		return nil
	}
	deleted, err := s.store.SoftDeleteRecord(ctx, tenantID, sm.ID, recordID)
	if err != nil {
		return err
	}
	if deleted {
		s.publish(lifecycle.RecordDeleted, tenantID, sm.Code, recordID, actorID, nil)
	}
	return nil
}

func (s *recordService) validate(ctx context.Context, tenantID string, subModuleID string, payload map[string]any) (map[string]any, error) {
	fields, err := s.schemas.ListFields(ctx, tenantID, subModuleID)
	if err != nil {
		return nil, err
	}
	normalized, ferrs := ValidatePayload(fields, payload)
	if len(ferrs) > 0 {
		return nil, apperr.NewValidation(ferrs)
	}
	return normalized, nil
}

func (s *recordService) publish(kind lifecycle.Kind, tenantID, code, recordID, actorID string, payload map[string]any) {
	s.events.Publish(lifecycle.Event{
		Kind:          kind,
		TenantID:      tenantID,
		SubModuleCode: code,
		RecordID:      recordID,
		ActorID:       actorID,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	})
}
