package forms

import (
	"fmt"
	"math"
	"sort"

	pdfutil "github.com/dharsanguruparan/OnboardOps/internal/pdf"
)

// Registry holds validated schemas keyed by form type.
type Registry struct {
	templates *Templates
	forms     map[FormType]*entry
}

type entry struct {
	schema  Schema
	pages   int
	widgets map[string]Widget
}

// LoadRegistry validates every schema against its template and returns a
// registry, or a *ValidationError describing every problem found.
func LoadRegistry(templates *Templates, schemas []Schema) (*Registry, error) {
	reg := &Registry{templates: templates, forms: make(map[FormType]*entry, len(schemas))}
	verr := &ValidationError{}
	for _, s := range schemas {
		if s.Form == "" {
			verr.add("(unnamed)", "schema has no form type")
			continue
		}
		if _, dup := reg.forms[s.Form]; dup {
			verr.add(s.Form, "declared more than once")
			continue
		}
		e, err := inspect(templates, s)
		if err != nil {
			verr.addErr(s.Form, err)
			continue
		}
		validateSchema(verr, s, e)
		reg.forms[s.Form] = e
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return reg, nil
}

func inspect(templates *Templates, s Schema) (*entry, error) {
	data, err := templates.Open(s.Template)
	if err != nil {
		return nil, err
	}
	pages, err := pdfutil.PageCount(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", s.Template, err)
	}
	e := &entry{schema: s, pages: pages, widgets: map[string]Widget{}}
	if !s.HasWidgets() {
		return e, nil
	}
	widgets, err := Widgets(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", s.Template, err)
	}
	for _, w := range widgets {
		e.widgets[w.Name] = w
	}
	return e, nil
}

func validateSchema(verr *ValidationError, s Schema, e *entry) {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		switch {
		case f.Key == "":
			verr.add(s.Form, "field with empty key")
			continue
		case seen[f.Key]:
			verr.add(s.Form, "field %q declared more than once", f.Key)
			continue
		}
		seen[f.Key] = true
		if f.Kind != KindText && f.Kind != KindCheckbox {
			verr.add(s.Form, "field %q has unknown kind %q", f.Key, f.Kind)
		}
		switch {
		case f.Widget != "" && f.Overlay != nil:
			verr.add(s.Form, "field %q sets both widget and overlay", f.Key)
		case f.Widget == "" && f.Overlay == nil:
			verr.add(s.Form, "field %q has neither widget nor overlay", f.Key)
		case f.Widget != "":
			w, ok := e.widgets[f.Widget]
			if !ok {
				verr.add(s.Form, "field %q maps to widget %q which is not in template %s", f.Key, f.Widget, s.Template)
			} else if w.Kind != f.Kind {
				verr.add(s.Form, "field %q is %s but widget %q is %s", f.Key, f.Kind, f.Widget, w.Kind)
			}
		default:
			ov := f.Overlay
			if ov.Page < 1 || ov.Page > e.pages {
				verr.add(s.Form, "field %q overlay page %d outside 1..%d", f.Key, ov.Page, e.pages)
			}
			if ov.X < 0 || ov.Y < 0 {
				verr.add(s.Form, "field %q overlay anchor (%.1f, %.1f) is negative", f.Key, ov.X, ov.Y)
			}
			if ov.Size <= 0 {
				verr.add(s.Form, "field %q overlay font size must be positive", f.Key)
			} else if ov.Size != math.Trunc(ov.Size) {
				verr.add(s.Form, "field %q overlay font size %g must be a whole number of points", f.Key, ov.Size)
			}
			if ov.MaxWidth < 0 {
				verr.add(s.Form, "field %q overlay max width is negative", f.Key)
			}
		}
	}
	if s.Sign != nil {
		b := s.Sign
		if b.Page < 1 || b.Page > e.pages {
			verr.add(s.Form, "signature page %d outside 1..%d", b.Page, e.pages)
		}
		if b.Width <= 0 || b.Height <= 0 {
			verr.add(s.Form, "signature box must have positive width and height")
		}
	}
	if s.DateField != "" && !seen[s.DateField] {
		verr.add(s.Form, "date field %q is not a mapped key", s.DateField)
	}
}

// Schema returns the validated schema for form.
func (r *Registry) Schema(form FormType) (Schema, error) {
	e, ok := r.forms[form]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownForm, form)
	}
	return e.schema, nil
}

// Forms lists the registered form types in name order.
func (r *Registry) Forms() []FormType {
	out := make([]FormType, 0, len(r.forms))
	for f := range r.forms {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TemplateWidgets returns the widgets found in the template of form, ordered
// by page and name.
func (r *Registry) TemplateWidgets(form FormType) ([]Widget, error) {
	e, ok := r.forms[form]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, form)
	}
	out := make([]Widget, 0, len(e.widgets))
	for _, w := range e.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Template reads the template of form from the store. The file is read on
// every call so a template removed after startup fails the request.
func (r *Registry) Template(form FormType) ([]byte, error) {
	e, ok := r.forms[form]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownForm, form)
	}
	return r.templates.Open(e.schema.Template)
}

// Load builds a registry from the embedded or on-disk templates plus an
// optional YAML schema override file.
func Load(templateDir, schemaFile string) (*Registry, error) {
	templates := EmbeddedTemplates()
	if templateDir != "" {
		templates = DirTemplates(templateDir)
	}
	schemas := DefaultSchemas()
	if schemaFile != "" {
		overrides, err := LoadSchemaFile(schemaFile)
		if err != nil {
			return nil, err
		}
		schemas = MergeSchemas(schemas, overrides)
	}
	reg, err := LoadRegistry(templates, schemas)
	if err != nil {
		return nil, fmt.Errorf("validate form schemas: %w", err)
	}
	return reg, nil
}
