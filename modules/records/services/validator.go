package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	schematypes "github.com/lumacrm/luma/modules/schema/domain/types"
	"github.com/lumacrm/luma/pkg/apperr"
)

// ValidatePayload checks a candidate record payload against a field
// definition set. It returns the normalized payload on success, or the
// ordered list of field-level errors. Payload keys with no matching field
// pass through untouched: a stale client racing a newer schema must not be
// rejected for keys the schema no longer knows.
//
// The function is pure: no I/O, no store access.
func ValidatePayload(fields []schematypes.SubModuleField, payload map[string]any) (map[string]any, []apperr.FieldError) {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}

	var ferrs []apperr.FieldError
	for _, f := range fields {
		raw, present := payload[f.DBName]
		if isAbsent(raw, present) {
			if f.IsRequired {
				ferrs = append(ferrs, apperr.FieldError{Field: f.DBName, Reason: "required"})
			}
			continue
		}

		normalized, reason := normalizeValue(f, raw)
		if reason != "" {
			ferrs = append(ferrs, apperr.FieldError{Field: f.DBName, Reason: reason})
			continue
		}
		out[f.DBName] = normalized
	}

	if len(ferrs) > 0 {
		return nil, ferrs
	}
	return out, nil
}

func isAbsent(raw any, present bool) bool {
	if !present || raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

func normalizeValue(f schematypes.SubModuleField, raw any) (any, string) {
	switch f.FieldType {
	case schematypes.FieldTypeText:
		return normalizeText(raw)
	case schematypes.FieldTypeNumber:
		return normalizeNumber(raw)
	case schematypes.FieldTypeDate:
		return normalizeDate(raw)
	case schematypes.FieldTypeBoolean:
		// Exactly boolean; "true" the string is an error, not a coercion.
		if b, ok := raw.(bool); ok {
			return b, ""
		}
		return nil, "invalid_boolean"
	case schematypes.FieldTypeSelect:
		return normalizeSelect(f.Options, raw)
	case schematypes.FieldTypeAttachment:
		// Opaque reference string; existence is the attachment service's
		// concern, not the validator's.
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return s, ""
		}
		return nil, "invalid_attachment"
	default:
		return nil, "unknown_field_type"
	}
}

func normalizeText(raw any) (any, string) {
	switch v := raw.(type) {
	case string:
		return v, ""
	case bool:
		return strconv.FormatBool(v), ""
	case json.Number:
		return v.String(), ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), ""
	case int:
		return strconv.Itoa(v), ""
	case int64:
		return strconv.FormatInt(v, 10), ""
	default:
		return nil, "invalid_text"
	}
}

func normalizeNumber(raw any) (any, string) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, "invalid_number"
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, "invalid_number"
		}
		n = parsed
	default:
		return nil, "invalid_number"
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, "invalid_number"
	}
	return n, ""
}

func normalizeDate(raw any) (any, string) {
	s, ok := raw.(string)
	if !ok {
		return nil, "invalid_date"
	}
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s, ""
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return s, ""
	}
	return nil, "invalid_date"
}

func normalizeSelect(options []schematypes.FieldOption, raw any) (any, string) {
	s, ok := raw.(string)
	if !ok {
		return nil, "not_an_option"
	}
	for _, opt := range options {
		if opt.Value == s {
			return s, ""
		}
	}
	return nil, "not_an_option"
}
