package types

// Workflow binds a sub-module's lifecycle trigger to a notification. The
// condition is a CEL expression over the record payload; an empty condition
// always matches.
type Workflow struct {
	ID              string
	TenantID        string
	Name            string
	SubModuleCode   string
	TriggerEvent    string
	ConditionExpr   string
	RecipientID     string
	MessageTemplate string
	Enabled         bool
}
