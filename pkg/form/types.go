package form

import (
	"regexp"
	"time"
)

// Kind is the closed enumeration of field types a form may declare.
type Kind string

const (
	KindText       Kind = "text"
	KindNumber     Kind = "number"
	KindBoolean    Kind = "boolean"
	KindSelect     Kind = "select"
	KindDate       Kind = "date"
	KindCalculated Kind = "calculated"
)

// Kinds lists every supported field kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindText, KindNumber, KindBoolean, KindSelect, KindDate, KindCalculated}
}

// Supported reports whether k belongs to the closed kind set.
func (k Kind) Supported() bool {
	switch k {
	case KindText, KindNumber, KindBoolean, KindSelect, KindDate, KindCalculated:
		return true
	}
	return false
}

// Canonical validation rule kinds layered on top of the base type checks.
const (
	RuleMin       = "min"
	RuleMax       = "max"
	RuleMinLength = "minLength"
	RulePattern   = "pattern"
)

// Rule represents a single validation constraint applied to a field after the
// base kind check passes. Value carries the threshold or pattern as a string
// to keep JSON and YAML snapshots stable; Message, when set, replaces the
// default failure message.
type Rule struct {
	Kind    string `json:"kind" yaml:"kind"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Option is one selectable entry of a select field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// NumericFormat narrows acceptable values of a number field.
type NumericFormat string

const (
	NumericInteger NumericFormat = "integer"
	NumericDecimal NumericFormat = "decimal"
)

// Field models a single typed slot inside a form definition. Which optional
// members are meaningful depends on Kind: Formula/Dependencies/Precision for
// calculated fields, Multiple/Options for selects, NumericFormat for numbers,
// MinDate/MaxDate for dates.
type Field struct {
	ID            string        `json:"id" yaml:"id"`
	Label         string        `json:"label" yaml:"label"`
	Kind          Kind          `json:"kind" yaml:"kind"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
	Required      bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Conditional   string        `json:"conditional,omitempty" yaml:"conditional,omitempty"`
	Rules         []Rule        `json:"validationRules,omitempty" yaml:"validationRules,omitempty"`
	Formula       string        `json:"formula,omitempty" yaml:"formula,omitempty"`
	Dependencies  []string      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Precision     *int          `json:"precision,omitempty" yaml:"precision,omitempty"`
	NumericFormat NumericFormat `json:"numericFormat,omitempty" yaml:"numericFormat,omitempty"`
	Multiple      bool          `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Options       []Option      `json:"options,omitempty" yaml:"options,omitempty"`
	MinDate       string        `json:"minDate,omitempty" yaml:"minDate,omitempty"`
	MaxDate       string        `json:"maxDate,omitempty" yaml:"maxDate,omitempty"`
}

// Calculated reports whether the field derives its value from a formula.
func (f Field) Calculated() bool { return f.Kind == KindCalculated }

// MaxFields caps the number of fields a single form may declare.
const MaxFields = 100

var identifierPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// ValidIdentifier reports whether id matches the restricted field identifier
// alphabet (lowercase alphanumerics, hyphen, underscore).
func ValidIdentifier(id string) bool {
	return id != "" && identifierPattern.MatchString(id)
}

// Form is a versioned collection of field definitions. SchemaVersion starts
// at 1 and increases by one on every accepted schema update. Protected forms
// reject soft deletion until protection is cleared by an update.
type Form struct {
	ID            string     `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	SchemaVersion int        `json:"schemaVersion" yaml:"schemaVersion"`
	Active        bool       `json:"active" yaml:"active"`
	Protected     bool       `json:"protected,omitempty" yaml:"protected,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" yaml:"createdAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty" yaml:"deletedAt,omitempty"`
	DeletedBy     string     `json:"deletedBy,omitempty" yaml:"deletedBy,omitempty"`
	Fields        []Field    `json:"fields" yaml:"fields"`
}

// FieldByID returns the field declared with the given id.
func (f Form) FieldByID(id string) (Field, bool) {
	for _, field := range f.Fields {
		if field.ID == id {
			return field, true
		}
	}
	return Field{}, false
}

// Response records one submission against a form's then-current schema.
// Values holds caller-supplied answers keyed by field id; Computed holds the
// engine-calculated values keyed by calculated-field id. A response is
// immutable apart from soft deletion.
type Response struct {
	ID            string         `json:"id" yaml:"id"`
	FormID        string         `json:"formId" yaml:"formId"`
	SchemaVersion int            `json:"schemaVersion" yaml:"schemaVersion"`
	Values        map[string]any `json:"values" yaml:"values"`
	Computed      map[string]any `json:"computed,omitempty" yaml:"computed,omitempty"`
	CreatedAt     time.Time      `json:"createdAt" yaml:"createdAt"`
	Active        bool           `json:"active" yaml:"active"`
	DeletedAt     *time.Time     `json:"deletedAt,omitempty" yaml:"deletedAt,omitempty"`
	DeletedBy     string         `json:"deletedBy,omitempty" yaml:"deletedBy,omitempty"`
}
