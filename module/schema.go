package module

import (
	"fmt"
)

// ConfigSchema describes the configuration parameters for a module
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single configuration property
type PropertySchema struct {
	Type        string   `json:"type"` // "string", "int", "bool", "float", "enum", "array", "object"
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`    // Valid string values
	Minimum     *int     `json:"minimum,omitempty"` // For numeric types
	Maximum     *int     `json:"maximum,omitempty"` // For numeric types
}

// ValidationError represents a validation error for a specific configuration
// field.
//
// Error codes are standardized:
//   - "required": Field is required but missing
//   - "min": Numeric value below minimum threshold
//   - "max": Numeric value above maximum threshold
//   - "enum": Value not in allowed enum values
//   - "type": Value doesn't match expected type
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidateConfig validates a configuration map against a ConfigSchema.
// It checks required fields, type constraints, min/max bounds, and enum
// values. Validation is lenient: unknown fields are allowed to support
// schema evolution.
//
// Returns a slice of ValidationError containing all failures found; an empty
// slice means the configuration is valid.
func ValidateConfig(config map[string]any, schema ConfigSchema) []ValidationError {
	var errs []ValidationError

	for _, requiredField := range schema.Required {
		if _, exists := config[requiredField]; !exists {
			errs = append(errs, ValidationError{
				Field:   requiredField,
				Message: fmt.Sprintf("Field %q is required", requiredField),
				Code:    "required",
			})
		}
	}

	for fieldName, fieldValue := range config {
		propSchema, exists := schema.Properties[fieldName]
		if !exists {
			continue
		}

		if err := validateType(fieldName, fieldValue, propSchema); err != nil {
			errs = append(errs, *err)
			continue
		}

		if len(propSchema.Enum) > 0 {
			if err := validateEnum(fieldName, fieldValue, propSchema.Enum); err != nil {
				errs = append(errs, *err)
			}
		}

		if propSchema.Type == "int" || propSchema.Type == "float" {
			if propSchema.Minimum != nil {
				if err := validateMin(fieldName, fieldValue, *propSchema.Minimum); err != nil {
					errs = append(errs, *err)
				}
			}
			if propSchema.Maximum != nil {
				if err := validateMax(fieldName, fieldValue, *propSchema.Maximum); err != nil {
					errs = append(errs, *err)
				}
			}
		}
	}

	return errs
}

// validateType checks if the value matches the expected type
func validateType(fieldName string, fieldValue any, propSchema PropertySchema) *ValidationError {
	switch propSchema.Type {
	case "string":
		if _, ok := fieldValue.(string); !ok {
			return &ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a string", fieldName),
				Code:    "type",
			}
		}
	case "int":
		// Accept both int and float64 (JSON numbers)
		switch fieldValue.(type) {
		case int, int32, int64, float64:
		default:
			return &ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be an integer", fieldName),
				Code:    "type",
			}
		}
	case "bool":
		if _, ok := fieldValue.(bool); !ok {
			return &ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a boolean", fieldName),
				Code:    "type",
			}
		}
	case "float":
		switch fieldValue.(type) {
		case int, int32, int64, float32, float64:
		default:
			return &ValidationError{
				Field:   fieldName,
				Message: fmt.Sprintf("Field %q must be a number", fieldName),
				Code:    "type",
			}
		}
	}
	return nil
}

// validateEnum checks if the value is in the allowed enum values
func validateEnum(fieldName string, fieldValue any, enumValues []string) *ValidationError {
	strValue, ok := fieldValue.(string)
	if !ok {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be a string for enum validation", fieldName),
			Code:    "type",
		}
	}

	for _, allowed := range enumValues {
		if strValue == allowed {
			return nil
		}
	}

	return &ValidationError{
		Field:   fieldName,
		Message: fmt.Sprintf("Field %q must be one of: %v", fieldName, enumValues),
		Code:    "enum",
	}
}

// validateMin checks if numeric value meets minimum
func validateMin(fieldName string, fieldValue any, min int) *ValidationError {
	numValue, err := asFloat(fieldName, fieldValue, "min")
	if err != nil {
		return err
	}
	if numValue < float64(min) {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be >= %d", fieldName, min),
			Code:    "min",
		}
	}
	return nil
}

// validateMax checks if numeric value meets maximum
func validateMax(fieldName string, fieldValue any, max int) *ValidationError {
	numValue, err := asFloat(fieldName, fieldValue, "max")
	if err != nil {
		return err
	}
	if numValue > float64(max) {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be <= %d", fieldName, max),
			Code:    "max",
		}
	}
	return nil
}

func asFloat(fieldName string, fieldValue any, check string) (float64, *ValidationError) {
	switch v := fieldValue.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("Field %q must be numeric for %s validation", fieldName, check),
			Code:    "type",
		}
	}
}
