// Package types provides type definitions for structured data used throughout the gtm-copilot system.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormValue is a wizard input. Drafts written by older clients store numeric
// inputs as JSON numbers, so both strings and numbers are accepted.
type FormValue string

// UnmarshalJSON accepts a JSON string, number, bool or null.
func (v *FormValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FormValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = FormValue(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = FormValue(strconv.FormatBool(b))
		return nil
	}
	return fmt.Errorf("unsupported form value: %s", string(data))
}

// String returns the trimmed value.
func (v FormValue) String() string {
	return strings.TrimSpace(string(v))
}

// Float parses the value as a number, returning 0 when it is not numeric.
func (v FormValue) Float() float64 {
	f, err := strconv.ParseFloat(strings.ReplaceAll(v.String(), ",", "."), 64)
	if err != nil {
		return 0
	}
	return f
}

// ProductContext is the domain input collected by the wizard: product, ICP,
// commercial data, competitors and priority.
type ProductContext struct {
	// Product
	ProductName FormValue `json:"productName" validate:"required"`
	Description FormValue `json:"description" validate:"required"`
	Stage       FormValue `json:"stage" validate:"required"`

	// ICP
	BusinessType FormValue `json:"businessType,omitempty"`
	AccountSize  FormValue `json:"accountSize,omitempty"`
	Persona      FormValue `json:"persona" validate:"required"`
	NumCustomers FormValue `json:"numCustomers,omitempty"`

	// Commercial
	Pricing   FormValue `json:"pricing" validate:"required"`
	TicketVal FormValue `json:"ticketVal,omitempty"`
	ChurnRate FormValue `json:"churnRate" validate:"required"`
	NRRTarget FormValue `json:"nrrTarget,omitempty"`
	GTMMotion FormValue `json:"gtmMotion,omitempty"`

	// Competitors
	Comp1     FormValue `json:"comp1" validate:"required"`
	Comp2     FormValue `json:"comp2,omitempty"`
	Comp3     FormValue `json:"comp3,omitempty"`
	WhereLose FormValue `json:"whereLose,omitempty"`

	// Priority
	Urgency       FormValue `json:"urgency" validate:"required"`
	Timeline      FormValue `json:"timeline,omitempty"`
	RiskCustomers FormValue `json:"riskCustomers,omitempty"`

	// TamRisk is derived from TicketVal × RiskCustomers.
	TamRisk float64 `json:"tamRisk"`
}

// CriticalFields lists the inputs a pipeline run cannot start without.
var CriticalFields = []string{"productName", "description", "stage", "persona", "pricing", "churnRate", "comp1", "urgency"}

// FieldLabels are the human-readable labels of the critical fields.
var FieldLabels = map[string]string{
	"productName": "Product name",
	"description": "Description",
	"stage":       "Stage",
	"persona":     "Persona",
	"pricing":     "Pricing",
	"churnRate":   "Churn rate",
	"comp1":       "Main competitor",
	"urgency":     "Urgency",
}

// MissingFieldsError lists critical fields left empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	labels := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if label, ok := FieldLabels[f]; ok {
			labels = append(labels, label)
			continue
		}
		labels = append(labels, f)
	}
	return fmt.Sprintf("required fields are empty: %s", strings.Join(labels, ", "))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks that every critical field is filled. Whitespace-only values
// count as empty.
func (p *ProductContext) Validate() error {
	trimmed := p.Normalized()
	err := validate.Struct(&trimmed)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return &MissingFieldsError{Fields: fields}
}

// Normalized returns a copy with trimmed values and TamRisk recomputed.
func (p ProductContext) Normalized() ProductContext {
	out := p
	for _, f := range out.fieldPointers() {
		*f.value = FormValue(f.value.String())
	}
	out.TamRisk = out.TicketVal.Float() * out.RiskCustomers.Float()
	return out
}

// Competitors returns the non-empty competitor names in order.
func (p ProductContext) Competitors() []string {
	var out []string
	for _, c := range []FormValue{p.Comp1, p.Comp2, p.Comp3} {
		if c.String() != "" {
			out = append(out, c.String())
		}
	}
	return out
}

// Audience combines persona and business type the way the prompts expect.
func (p ProductContext) Audience() string {
	if p.BusinessType.String() == "" {
		return p.Persona.String()
	}
	return fmt.Sprintf("%s (%s)", p.Persona.String(), p.BusinessType.String())
}

// FilledFields returns the JSON names of all non-empty inputs, sorted.
func (p ProductContext) FilledFields() []string {
	var out []string
	for _, f := range p.fieldPointers() {
		if f.value.String() != "" {
			out = append(out, f.name)
		}
	}
	sort.Strings(out)
	return out
}

// JSON renders the context as indented JSON for prompt embedding.
func (p ProductContext) JSON() string {
	data, err := json.MarshalIndent(p.Normalized(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

type namedField struct {
	name  string
	value *FormValue
}

func (p *ProductContext) fieldPointers() []namedField {
	return []namedField{
		{"productName", &p.ProductName},
		{"description", &p.Description},
		{"stage", &p.Stage},
		{"businessType", &p.BusinessType},
		{"accountSize", &p.AccountSize},
		{"persona", &p.Persona},
		{"numCustomers", &p.NumCustomers},
		{"pricing", &p.Pricing},
		{"ticketVal", &p.TicketVal},
		{"churnRate", &p.ChurnRate},
		{"nrrTarget", &p.NRRTarget},
		{"gtmMotion", &p.GTMMotion},
		{"comp1", &p.Comp1},
		{"comp2", &p.Comp2},
		{"comp3", &p.Comp3},
		{"whereLose", &p.WhereLose},
		{"urgency", &p.Urgency},
		{"timeline", &p.Timeline},
		{"riskCustomers", &p.RiskCustomers},
	}
}
