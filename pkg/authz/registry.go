package authz

const (
	RoleTenantAdmin  = "tenant-admin"
	RoleTenantMember = "tenant-member"
	RoleAnonymous    = "anonymous"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
	ActionAdmin = "admin"
)

const (
	ObjectConfigSubModules    = "config.sub-modules"
	ObjectConfigFields        = "config.fields"
	ObjectDataRecords         = "data.records"
	ObjectAutomationWorkflows = "automation.workflows"
	ObjectNotifyNotifications = "notify.notifications"
)
