package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// The structs below mirror the JSON exchanged with pdfcpu's form export and
// fill commands. Only text fields, date fields and checkboxes are used by the
// onboarding templates; other widget families are ignored on export. pdfcpu
// reports a text widget as a date field once its value or default parses as
// a date, and only fills it when the value is sent under the same family.
type formGroup struct {
	Forms []formFields `json:"forms"`
}

type formFields struct {
	TextFields []textField `json:"textfield,omitempty"`
	DateFields []dateField `json:"datefield,omitempty"`
	CheckBoxes []checkBox  `json:"checkbox,omitempty"`
}

type textField struct {
	Pages  []int  `json:"pages"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  string `json:"value"`
	Locked bool   `json:"locked"`
}

type dateField struct {
	Pages  []int  `json:"pages"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
	Value  string `json:"value"`
	Locked bool   `json:"locked"`
}

type checkBox struct {
	Pages  []int  `json:"pages"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Value  bool   `json:"value"`
	Locked bool   `json:"locked"`
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	// Classic xref tables keep filled output readable by simple PDF readers.
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// Widgets lists the fillable widgets of a PDF with their current values.
// Checkbox values are reported as "Yes" or "Off".
func Widgets(data []byte) ([]Widget, error) {
	var out bytes.Buffer
	if err := api.ExportFormJSON(bytes.NewReader(data), &out, "template", newConfiguration()); err != nil {
		return nil, fmt.Errorf("export form fields: %w", err)
	}
	var group formGroup
	if err := json.Unmarshal(out.Bytes(), &group); err != nil {
		return nil, fmt.Errorf("decode form fields: %w", err)
	}
	var widgets []Widget
	for _, f := range group.Forms {
		for _, tf := range f.TextFields {
			widgets = append(widgets, Widget{Name: tf.Name, Kind: KindText, Page: firstPage(tf.Pages), Value: tf.Value})
		}
		for _, df := range f.DateFields {
			widgets = append(widgets, Widget{Name: df.Name, Kind: KindText, Page: firstPage(df.Pages), Value: df.Value, DateFormat: df.Format})
		}
		for _, cb := range f.CheckBoxes {
			widgets = append(widgets, Widget{Name: cb.Name, Kind: KindCheckbox, Page: firstPage(cb.Pages), Value: checkboxState(cb.Value)})
		}
	}
	sort.Slice(widgets, func(i, j int) bool {
		if widgets[i].Page != widgets[j].Page {
			return widgets[i].Page < widgets[j].Page
		}
		return widgets[i].Name < widgets[j].Name
	})
	return widgets, nil
}

// ReadValues returns widget name → value for a filled document.
func ReadValues(data []byte) (map[string]string, error) {
	widgets, err := Widgets(data)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(widgets))
	for _, w := range widgets {
		values[w.Name] = w.Value
	}
	return values, nil
}

func checkboxState(on bool) string {
	if on {
		return "Yes"
	}
	return "Off"
}

func firstPage(pages []int) int {
	if len(pages) == 0 {
		return 1
	}
	return pages[0]
}

// widgetFill accumulates the widget values of one fill pass.
type widgetFill struct {
	text  []textField
	dates []dateField
	check []checkBox
}

func (w *widgetFill) empty() bool { return len(w.text) == 0 && len(w.dates) == 0 && len(w.check) == 0 }

// setText routes the value to the family pdfcpu reported for the widget.
func (w *widgetFill) setText(widget Widget, value string) {
	if widget.DateFormat != "" {
		w.dates = append(w.dates, dateField{Pages: []int{widget.Page}, Name: widget.Name, Format: widget.DateFormat, Value: value})
		return
	}
	w.text = append(w.text, textField{Pages: []int{widget.Page}, Name: widget.Name, Value: value})
}

func (w *widgetFill) setCheck(widget Widget, on bool) {
	w.check = append(w.check, checkBox{Pages: []int{widget.Page}, Name: widget.Name, Value: on})
}

func (w *widgetFill) apply(data []byte, conf *model.Configuration) ([]byte, error) {
	payload, err := json.Marshal(formGroup{Forms: []formFields{{TextFields: w.text, DateFields: w.dates, CheckBoxes: w.check}}})
	if err != nil {
		return nil, fmt.Errorf("marshal form values: %w", err)
	}
	var out bytes.Buffer
	if err := api.FillForm(bytes.NewReader(data), bytes.NewReader(payload), &out, conf); err != nil {
		return nil, fmt.Errorf("fill form: %w", err)
	}
	return out.Bytes(), nil
}
