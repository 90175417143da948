package types

// FieldType is the closed set of value shapes a sub-module field can take.
// Validation dispatches exhaustively over this set.
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeNumber     FieldType = "number"
	FieldTypeDate       FieldType = "date"
	FieldTypeSelect     FieldType = "select"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeAttachment FieldType = "attachment"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeDate, FieldTypeSelect, FieldTypeBoolean, FieldTypeAttachment:
		return true
	default:
		return false
	}
}

// FieldOption is one selectable value of a select field. Matching is by
// Value; Label is presentation only.
type FieldOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SubModuleField is one named, typed property of a sub-module's record
// shape. DBName is the payload storage key, unique within the sub-module.
type SubModuleField struct {
	ID              string        `json:"id"`
	SubModuleID     string        `json:"sub_module_id"`
	TenantID        string        `json:"tenant_id"`
	Name            string        `json:"name"`
	DBName          string        `json:"db_name"`
	FieldType       FieldType     `json:"field_type"`
	Options         []FieldOption `json:"options,omitempty"`
	IsRequired      bool          `json:"is_required"`
	IsVisibleInList bool          `json:"is_visible_in_list"`
	SortOrder       int           `json:"sort_order"`
}

type ListViewConfig struct {
	Columns []string `json:"columns"`
	Filters []string `json:"filters"`
}

// SubModule is a tenant-defined record type. Code is unique per tenant and
// always in normalized slug form.
type SubModule struct {
	ID                  string         `json:"id"`
	TenantID            string         `json:"tenant_id"`
	Name                string         `json:"name"`
	Code                string         `json:"code"`
	Description         string         `json:"description,omitempty"`
	MainModuleID        string         `json:"main_module_id,omitempty"`
	Icon                string         `json:"icon,omitempty"`
	DisplayNameSingular string         `json:"display_name_singular"`
	DisplayNamePlural   string         `json:"display_name_plural"`
	Settings            map[string]any `json:"settings"`
	ListViewConfig      ListViewConfig `json:"list_view_config"`
	FormViewConfig      map[string]any `json:"form_view_config"`
	SortOrder           int            `json:"sort_order"`
}
