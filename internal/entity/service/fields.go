package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/smartcode"
	"gorm.io/datatypes"
)

// buildField validates one dynamic field and fills exactly one value column.
func buildField(idx int, in domain.DynamicFieldInput) (schema.DynamicField, error) {
	name := strings.TrimSpace(in.FieldName)
	if name == "" {
		return schema.DynamicField{}, fmt.Errorf("%w: dynamic_fields[%d] has no field_name", domain.ErrInvalidField, idx)
	}
	code, err := smartcode.Check(fmt.Sprintf("dynamic_fields[%d].smart_code", idx), in.SmartCode)
	if err != nil {
		return schema.DynamicField{}, err
	}

	fieldType := schema.FieldType(strings.ToLower(strings.TrimSpace(string(in.FieldType))))
	if fieldType == "" {
		fieldType = inferType(in.Value)
	}

	field := schema.DynamicField{
		FieldName: name,
		FieldType: fieldType,
		SmartCode: code,
	}
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s %s", domain.ErrInvalidField, name, reason)
	}

	switch fieldType {
	case schema.FieldTypeText:
		s, ok := in.Value.(string)
		if !ok {
			return field, invalid("expects a string")
		}
		field.ValueText = &s
	case schema.FieldTypeNumber:
		n, ok := toNumber(in.Value)
		if !ok {
			return field, invalid("expects a number")
		}
		field.ValueNumber = &n
	case schema.FieldTypeBoolean:
		b, ok := in.Value.(bool)
		if !ok {
			return field, invalid("expects a boolean")
		}
		field.ValueBoolean = &b
	case schema.FieldTypeJSON:
		raw, err := json.Marshal(in.Value)
		if err != nil {
			return field, invalid("is not encodable as json")
		}
		field.ValueJSON = datatypes.JSON(raw)
	case schema.FieldTypeDate:
		d, ok := toDate(in.Value)
		if !ok {
			return field, invalid("expects an RFC 3339 timestamp or YYYY-MM-DD date")
		}
		field.ValueDate = &d
	default:
		return field, invalid(fmt.Sprintf("has unknown field_type %q", fieldType))
	}
	return field, nil
}

func inferType(value any) schema.FieldType {
	switch value.(type) {
	case string:
		return schema.FieldTypeText
	case bool:
		return schema.FieldTypeBoolean
	case float64, float32, int, int32, int64, json.Number:
		return schema.FieldTypeNumber
	case time.Time:
		return schema.FieldTypeDate
	default:
		return schema.FieldTypeJSON
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stampField(field schema.DynamicField, id, orgID, entityID, actorID snowflake.ID, now time.Time) schema.DynamicField {
	field.ID = id
	field.OrganizationID = orgID
	field.EntityID = entityID
	field.CreatedBy = actorID
	field.UpdatedBy = actorID
	field.CreatedAt = now
	field.UpdatedAt = now
	return field
}
