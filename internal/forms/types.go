// Package forms fills the onboarding PDF forms (I-9, W-4, direct deposit,
// health insurance, weapons policy) with employee data.
//
// Each form type has a Schema mapping logical keys such as
// "bank1_routing_number" either to an AcroForm widget in the template or to
// an overlay placement (page, anchor, font, size) for templates that carry no
// widgets. Schemas are validated against their templates when the Registry
// is loaded, so a mapping that points at a widget the template does not have
// fails at startup rather than silently producing a blank field.
package forms

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FormType identifies one onboarding form.
type FormType string

const (
	FormI9              FormType = "i9"
	FormW4              FormType = "w4"
	FormDirectDeposit   FormType = "direct_deposit"
	FormHealthInsurance FormType = "health_insurance"
	FormWeaponsPolicy   FormType = "weapons_policy"
)

// FieldKind is the widget type a logical key renders as.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindCheckbox FieldKind = "checkbox"
)

var (
	ErrUnknownForm      = errors.New("unknown form type")
	ErrTemplateNotFound = errors.New("form template not found")
	ErrInvalidSignature = errors.New("invalid signature image")
)

// Overlay places a value directly on a page. X and Y are the lower-left
// anchor in PDF points. Values are drawn on a single line and are never
// wrapped; MaxWidth only drives an overflow warning.
type Overlay struct {
	Page     int     `yaml:"page" json:"page"`
	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Font     string  `yaml:"font,omitempty" json:"font,omitempty"`
	Size     float64 `yaml:"size,omitempty" json:"size,omitempty"`
	MaxWidth float64 `yaml:"max_width,omitempty" json:"max_width,omitempty"`
}

// FieldSpec maps one logical key to its rendering location. Exactly one of
// Widget and Overlay is set.
type FieldSpec struct {
	Key     string    `yaml:"key" json:"key"`
	Kind    FieldKind `yaml:"kind" json:"kind"`
	Widget  string    `yaml:"widget,omitempty" json:"widget,omitempty"`
	Overlay *Overlay  `yaml:"overlay,omitempty" json:"overlay,omitempty"`
}

// SignatureBox is the rectangle a signature image is scaled into.
type SignatureBox struct {
	Page   int     `yaml:"page" json:"page"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// Schema is the FieldMapping of one form type.
type Schema struct {
	Form     FormType      `yaml:"form" json:"form"`
	Title    string        `yaml:"title" json:"title"`
	Template string        `yaml:"template" json:"template"`
	Fields   []FieldSpec   `yaml:"fields" json:"fields"`
	Sign     *SignatureBox `yaml:"signature,omitempty" json:"signature,omitempty"`
	// DateField names the logical key that receives FillRequest.SignedAt
	// when the request does not set it explicitly.
	DateField string `yaml:"date_field,omitempty" json:"date_field,omitempty"`
}

// Field returns the spec for key.
func (s Schema) Field(key string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Keys lists the logical keys in declaration order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// HasWidgets reports whether any field is backed by an AcroForm widget.
func (s Schema) HasWidgets() bool {
	for _, f := range s.Fields {
		if f.Widget != "" {
			return true
		}
	}
	return false
}

// Widget is a named fillable region found in a template.
type Widget struct {
	Name  string    `json:"name"`
	Kind  FieldKind `json:"kind"`
	Page  int       `json:"page"`
	Value string    `json:"value"`
	// DateFormat is set for text widgets whose value or default is a date,
	// e.g. "mm/dd/yyyy".
	DateFormat string `json:"date_format,omitempty"`
}

// FillRequest carries the values for one fill. Values are literals decoded
// from JSON or flags: strings, booleans, numbers or nil.
type FillRequest struct {
	Values    map[string]any `json:"values"`
	Signature string         `json:"signature,omitempty"`
	SignedAt  time.Time      `json:"signed_at,omitempty"`
}

// FilledDocument is the rendered output of a fill.
type FilledDocument struct {
	Form      FormType
	Data      []byte
	CreatedAt time.Time
}

// Filename is a suggested download name.
func (d *FilledDocument) Filename() string {
	return fmt.Sprintf("%s-%s.pdf", d.Form, d.CreatedAt.UTC().Format("20060102T150405Z"))
}

// ValidationError collects every problem found while checking schemas
// against their templates.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%d form schema problem(s): %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error { return e.Problems }

func (e *ValidationError) add(form FormType, format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Errorf("%s: %s", form, fmt.Sprintf(format, args...)))
}

func (e *ValidationError) addErr(form FormType, err error) {
	e.Problems = append(e.Problems, fmt.Errorf("%s: %w", form, err))
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
