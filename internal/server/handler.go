package server

import (
	"context"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lumacrm/luma/internal/routing"
	automationpersistence "github.com/lumacrm/luma/modules/automation/infrastructure/persistence"
	automationservices "github.com/lumacrm/luma/modules/automation/services"
	notifypersistence "github.com/lumacrm/luma/modules/notify/infrastructure/persistence"
	notifyservices "github.com/lumacrm/luma/modules/notify/services"
	recordpersistence "github.com/lumacrm/luma/modules/records/infrastructure/persistence"
	recordservices "github.com/lumacrm/luma/modules/records/services"
	schemapersistence "github.com/lumacrm/luma/modules/schema/infrastructure/persistence"
	schemaservices "github.com/lumacrm/luma/modules/schema/services"
	"go.uber.org/zap"
)

func NewHandler(log *zap.Logger) (http.Handler, error) {
	return NewHandlerWithOptions(HandlerOptions{Logger: log})
}

// HandlerOptions lets tests swap any collaborator; nil fields fall back to
// the Postgres-backed defaults built from the environment.
type HandlerOptions struct {
	TenancyResolver     TenancyResolver
	SchemaService       schemaservices.SchemaService
	RecordService       recordservices.RecordService
	WorkflowService     automationservices.WorkflowService
	NotificationService notifyservices.NotificationService
	Authorizer          authorizer
	Logger              *zap.Logger
}

func NewHandlerWithOptions(opts HandlerOptions) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	allowlistPath := os.Getenv("ALLOWLIST_PATH")
	if allowlistPath == "" {
		p, err := defaultConfigPath("config/routing/allowlist.yaml", "server: allowlist not found")
		if err != nil {
			return nil, err
		}
		allowlistPath = p
	}
	a, err := routing.LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	classifier, err := routing.NewClassifier(a, "server")
	if err != nil {
		return nil, err
	}

	schemas := opts.SchemaService
	records := opts.RecordService
	workflows := opts.WorkflowService
	notifications := opts.NotificationService

	if schemas == nil || records == nil || workflows == nil || notifications == nil {
		pool, err := pgxpool.New(context.Background(), dbDSNFromEnv())
		if err != nil {
			return nil, err
		}

		dispatcher := notifyservices.NewDispatcher(log)
		if notifications == nil {
			notifications = notifyservices.NewNotificationService(notifypersistence.NewNotificationPGStore(pool))
		}
		if schemas == nil {
			schemas = schemaservices.NewSchemaService(schemapersistence.NewSchemaPGStore(pool), dispatcher)
		}
		if records == nil {
			records = recordservices.NewRecordService(schemas, recordpersistence.NewRecordPGStore(pool), dispatcher)
		}

		workflowStore := automationpersistence.NewWorkflowPGStore(pool)
		if workflows == nil {
			workflows = automationservices.NewWorkflowService(workflowStore)
		}
		engine := automationservices.NewEngine(workflowStore, notifications, log)
		dispatcher.Subscribe(engine.Handle)
	}

	tenancyResolver := opts.TenancyResolver
	if tenancyResolver == nil {
		tenants, err := loadTenants()
		if err != nil {
			return nil, err
		}
		tenancyResolver = NewStaticTenancyResolver(tenants)
	}

	authz := opts.Authorizer
	if authz == nil {
		a, err := loadAuthorizer()
		if err != nil {
			return nil, err
		}
		authz = a
	}

	router := routing.NewRouter(classifier)

	router.Handle(routing.RouteClassOps, http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	router.Handle(routing.RouteClassOps, http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/config/api/sub-modules", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListSubModules(w, r, schemas)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/config/api/sub-modules", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCreateSubModule(w, r, schemas)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/config/api/sub-modules/{code}/fields", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListFields(w, r, schemas)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/config/api/sub-modules/{code}/fields", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleApplySchema(w, r, schemas)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/data/api/{code}/records", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListRecords(w, r, records)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/data/api/{code}/records", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCreateRecord(w, r, records)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/data/api/{code}/records/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGetRecord(w, r, records)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/data/api/{code}/records/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleUpdateRecord(w, r, records)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/data/api/{code}/records/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeleteRecord(w, r, records)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/automation/api/workflows", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListWorkflows(w, r, workflows)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/automation/api/workflows", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCreateWorkflow(w, r, workflows)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPut, "/automation/api/workflows/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleUpdateWorkflow(w, r, workflows)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodDelete, "/automation/api/workflows/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleDeleteWorkflow(w, r, workflows)
	}))

	router.Handle(routing.RouteClassInternalAPI, http.MethodGet, "/notify/api/notifications", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleListNotifications(w, r, notifications)
	}))
	router.Handle(routing.RouteClassInternalAPI, http.MethodPost, "/notify/api/notifications/{id}/read", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleMarkNotificationRead(w, r, notifications)
	}))

	var h http.Handler = router
	h = withAuthz(classifier, authz, h)
	h = withIdentity(h)
	h = withTenantResolution(classifier, tenancyResolver, log, h)
	return h, nil
}

// withTenantResolution binds the request to a tenant by Host header. An
// unknown host is a hard 404: no tenant, no data.
func withTenantResolution(classifier *routing.Classifier, resolver TenancyResolver, log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := classifier.Classify(r.URL.Path)
		if r.URL.Path == "/health" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		host := effectiveHost(r)
		tenant, ok, err := resolver.ResolveTenant(r.Context(), host)
		if err != nil {
			log.Error("tenant resolution failed", zap.String("host", host), zap.Error(err))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "tenant_error", "tenant error")
			return
		}
		if !ok {
			routing.WriteError(w, r, rc, http.StatusNotFound, "unknown_tenant", "unknown tenant")
			return
		}

		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
	})
}

func withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := currentTenant(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if p, ok := principalFromHeaders(r, tenant); ok {
			r = r.WithContext(withPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}
