// Package openapi imports the request-body schema of an OpenAPI operation
// as a list of field definitions. It covers the subset of JSON Schema that
// maps cleanly onto form fields; calculated fields can only be authored
// directly, never imported.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/form"
)

// ImportOperation loads an OpenAPI document and converts the request-body
// schema of the operation identified by operationID into form fields.
func ImportOperation(ctx context.Context, data []byte, operationID string) ([]form.Field, error) {
	if len(data) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if spec.Paths == nil || spec.Paths.Len() == 0 {
		return nil, errors.New("openapi: document does not contain any paths")
	}

	operation := findOperation(spec, operationID)
	if operation == nil {
		return nil, fmt.Errorf("openapi: operation %q not found", operationID)
	}
	schema := requestSchema(operation)
	if schema == nil {
		return nil, fmt.Errorf("openapi: operation %q has no request body schema", operationID)
	}
	return fieldsFromSchema(schema)
}

func findOperation(spec *openapi3.T, operationID string) *openapi3.Operation {
	for _, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for _, op := range item.Operations() {
			if op != nil && op.OperationID == operationID {
				return op
			}
		}
	}
	return nil
}

func requestSchema(operation *openapi3.Operation) *openapi3.Schema {
	if operation.RequestBody == nil || operation.RequestBody.Value == nil {
		return nil
	}
	content := operation.RequestBody.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	for _, mt := range content {
		if mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

func fieldsFromSchema(schema *openapi3.Schema) ([]form.Field, error) {
	if len(schema.Properties) == 0 {
		return nil, errors.New("openapi: request schema declares no properties")
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	// Map iteration order is random; emit fields sorted by property name so
	// imports are reproducible.
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]form.Field, 0, len(names))
	for _, name := range names {
		ref := schema.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		field, err := fieldFromProperty(name, ref.Value, required[name])
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func fieldFromProperty(name string, prop *openapi3.Schema, required bool) (form.Field, error) {
	if !form.ValidIdentifier(name) {
		return form.Field{}, fmt.Errorf("openapi: property %q is not a valid field identifier", name)
	}
	field := form.Field{
		ID:          name,
		Label:       labelFor(name, prop),
		Description: prop.Description,
		Required:    required,
	}

	switch schemaType(prop) {
	case "string":
		if len(prop.Enum) > 0 {
			field.Kind = form.KindSelect
			field.Options = optionsFromEnum(prop.Enum)
			break
		}
		switch prop.Format {
		case "date", "date-time":
			field.Kind = form.KindDate
		default:
			field.Kind = form.KindText
			field.Rules = textRules(prop)
		}
	case "integer":
		field.Kind = form.KindNumber
		field.NumericFormat = form.NumericInteger
		field.Rules = numberRules(prop)
	case "number":
		field.Kind = form.KindNumber
		field.NumericFormat = form.NumericDecimal
		field.Rules = numberRules(prop)
	case "boolean":
		field.Kind = form.KindBoolean
	case "array":
		items := prop.Items
		if items == nil || items.Value == nil || len(items.Value.Enum) == 0 {
			return form.Field{}, fmt.Errorf("openapi: property %q: only enum arrays import as multi-selects", name)
		}
		field.Kind = form.KindSelect
		field.Multiple = true
		field.Options = optionsFromEnum(items.Value.Enum)
	default:
		return form.Field{}, fmt.Errorf("openapi: property %q has unsupported type %q", name, schemaType(prop))
	}
	return field, nil
}

func schemaType(prop *openapi3.Schema) string {
	if prop.Type == nil {
		return ""
	}
	values := prop.Type.Slice()
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func labelFor(name string, prop *openapi3.Schema) string {
	if prop.Title != "" {
		return prop.Title
	}
	return name
}

func optionsFromEnum(values []any) []form.Option {
	options := make([]form.Option, 0, len(values))
	for _, raw := range values {
		value := fmt.Sprint(raw)
		options = append(options, form.Option{Label: value, Value: value})
	}
	return options
}

func textRules(prop *openapi3.Schema) []form.Rule {
	var rules []form.Rule
	if prop.MinLength > 0 {
		rules = append(rules, form.Rule{
			Kind:  form.RuleMinLength,
			Value: strconv.FormatUint(prop.MinLength, 10),
		})
	}
	if prop.Pattern != "" {
		rules = append(rules, form.Rule{Kind: form.RulePattern, Value: prop.Pattern})
	}
	return rules
}

func numberRules(prop *openapi3.Schema) []form.Rule {
	var rules []form.Rule
	if prop.Min != nil {
		rules = append(rules, form.Rule{
			Kind:  form.RuleMin,
			Value: strconv.FormatFloat(*prop.Min, 'f', -1, 64),
		})
	}
	if prop.Max != nil {
		rules = append(rules, form.Rule{
			Kind:  form.RuleMax,
			Value: strconv.FormatFloat(*prop.Max, 'f', -1, 64),
		})
	}
	return rules
}
