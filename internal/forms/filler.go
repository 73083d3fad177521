package forms

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
)

func init() {
	// pdfcpu otherwise writes a config directory under the user's home on
	// first use, which fails in read-only containers.
	api.DisableConfigDir()
}

// Filler renders FillRequests onto templates.
type Filler struct {
	registry *Registry
	conf     *model.Configuration
	logger   *zap.Logger
	now      func() time.Time
}

// NewFiller constructs a Filler over a validated registry.
func NewFiller(registry *Registry, logger *zap.Logger) *Filler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filler{registry: registry, conf: newConfiguration(), logger: logger, now: time.Now}
}

// Registry exposes the schemas the filler was built with.
func (f *Filler) Registry() *Registry { return f.registry }

type overlayValue struct {
	key  string
	spec *Overlay
	text string
}

// Fill produces a FilledDocument for form. Keys missing from the schema are
// ignored, missing keys leave their field blank, and the only failures are a
// missing template, an undecodable signature or a PDF processing error.
func (f *Filler) Fill(ctx context.Context, form FormType, req FillRequest) (*FilledDocument, error) {
	schema, err := f.registry.Schema(form)
	if err != nil {
		return nil, err
	}
	data, err := f.registry.Template(form)
	if err != nil {
		return nil, err
	}

	var sig *Signature
	if req.Signature != "" {
		if sig, err = DecodeSignature(req.Signature); err != nil {
			return nil, err
		}
		if schema.Sign == nil {
			f.logger.Warn("form has no signature box, ignoring signature", zap.String("form", string(form)))
			sig = nil
		}
	}

	values := req.Values
	if schema.DateField != "" && !req.SignedAt.IsZero() {
		if _, set := values[schema.DateField]; !set {
			values = withValue(values, schema.DateField, req.SignedAt)
		}
	}

	fill, overlays, ignored := f.plan(schema, values)
	if len(ignored) > 0 {
		f.logger.Debug("ignoring unmapped keys", zap.String("form", string(form)), zap.Strings("keys", ignored))
	}

	if !fill.empty() {
		if data, err = fill.apply(data, f.conf); err != nil {
			return nil, err
		}
	}
	for _, ov := range overlays {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if data, err = f.stampText(data, ov); err != nil {
			return nil, fmt.Errorf("overlay %s: %w", ov.key, err)
		}
	}
	if sig != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if data, err = f.stampSignature(data, sig, *schema.Sign); err != nil {
			return nil, fmt.Errorf("overlay signature: %w", err)
		}
	}
	return &FilledDocument{Form: form, Data: data, CreatedAt: f.now().UTC()}, nil
}

// plan splits request values into widget values and overlays. Widget values
// that already match the template default are skipped so a request that
// changes nothing leaves the template bytes untouched.
func (f *Filler) plan(schema Schema, values map[string]any) (*widgetFill, []overlayValue, []string) {
	e := f.registry.forms[schema.Form]
	fill := &widgetFill{}
	var overlays []overlayValue
	for _, spec := range schema.Fields {
		v, ok := values[spec.Key]
		if !ok {
			continue
		}
		if spec.Overlay != nil {
			s := overlayString(spec.Kind, v)
			if s == "" {
				continue
			}
			overlays = append(overlays, overlayValue{key: spec.Key, spec: spec.Overlay, text: s})
			continue
		}
		w := e.widgets[spec.Widget]
		switch spec.Kind {
		case KindCheckbox:
			on := CheckValue(v)
			if checkboxState(on) != w.Value {
				fill.setCheck(w, on)
			}
		default:
			s := TextValue(v)
			if s != w.Value {
				fill.setText(w, s)
			}
		}
	}
	var ignored []string
	for key := range values {
		if _, ok := schema.Field(key); !ok {
			ignored = append(ignored, key)
		}
	}
	return fill, overlays, ignored
}

func overlayString(kind FieldKind, v any) string {
	if kind == KindCheckbox {
		if CheckValue(v) {
			return "X"
		}
		return ""
	}
	// Overlays are single line.
	return strings.Join(strings.Fields(TextValue(v)), " ")
}

func withValue(values map[string]any, key string, v any) map[string]any {
	out := make(map[string]any, len(values)+1)
	for k, val := range values {
		out[k] = val
	}
	out[key] = v
	return out
}

// approxWidth estimates the rendered width of s in points for a proportional
// font; good enough to flag values that will run past their box.
func approxWidth(s string, size float64) float64 {
	return float64(len([]rune(s))) * size * 0.5
}

func (f *Filler) stampText(data []byte, ov overlayValue) ([]byte, error) {
	spec := ov.spec
	if spec.MaxWidth > 0 && approxWidth(ov.text, spec.Size) > spec.MaxWidth {
		f.logger.Warn("overlay value overflows its area",
			zap.String("key", ov.key),
			zap.Float64("max_width", spec.MaxWidth),
			zap.Int("chars", len([]rune(ov.text))))
	}
	font := spec.Font
	if font == "" {
		font = defaultFont
	}
	size := spec.Size
	if size <= 0 {
		size = defaultSize
	}
	desc := fmt.Sprintf("fontname:%s, points:%d, position:bl, offset:%s %s, scalefactor:1 abs, rotation:0, fillcolor:#000000, opacity:1",
		font, int(math.Round(size)), formatPoints(spec.X), formatPoints(spec.Y))
	wm, err := api.TextWatermark(ov.text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build text stamp: %w", err)
	}
	return f.stamp(data, spec.Page, wm)
}

func (f *Filler) stampSignature(data []byte, sig *Signature, box SignatureBox) ([]byte, error) {
	x, y, scale := sig.fit(box)
	desc := fmt.Sprintf("position:bl, offset:%s %s, scalefactor:%s abs, rotation:0, opacity:1",
		formatPoints(x), formatPoints(y), strconv.FormatFloat(scale, 'f', 4, 64))
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(sig.Data), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build image stamp: %w", err)
	}
	return f.stamp(data, box.Page, wm)
}

func (f *Filler) stamp(data []byte, page int, wm *model.Watermark) ([]byte, error) {
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(data), &out, []string{strconv.Itoa(page)}, wm, f.conf); err != nil {
		return nil, fmt.Errorf("stamp page %d: %w", page, err)
	}
	return out.Bytes(), nil
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
