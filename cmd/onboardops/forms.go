package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	pdfutil "github.com/dharsanguruparan/OnboardOps/internal/pdf"
)

func newFormsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Inspect, validate and fill the onboarding PDF forms",
	}
	cmd.AddCommand(newFormsListCmd(a), newFormsInspectCmd(a), newFormsValidateCmd(a), newFormsFillCmd(a))
	return cmd
}

func (a *app) registry() (*forms.Registry, error) {
	return forms.Load(a.cfg.TemplateDir, a.cfg.SchemaFile)
}

func newFormsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List form types and their logical keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORM\tTEMPLATE\tSIGNATURE\tKEYS")
			for _, f := range reg.Forms() {
				s, _ := reg.Schema(f)
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", f, s.Template, s.Sign != nil, strings.Join(s.Keys(), ","))
			}
			return tw.Flush()
		},
	}
}

func newFormsInspectCmd(a *app) *cobra.Command {
	var withText bool
	cmd := &cobra.Command{
		Use:   "inspect FORM|FILE.pdf",
		Short: "Show the widgets of a template or a filled PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, widgets, err := a.inspectPDF(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(widgets) == 0 {
				fmt.Fprintln(out, "(no fillable widgets)")
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PAGE\tWIDGET\tKIND\tVALUE")
				for _, w := range widgets {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", w.Page, w.Name, w.Kind, w.Value)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if withText {
				pages, err := pdfutil.ExtractPages(data)
				if err != nil {
					return err
				}
				for i, text := range pages {
					fmt.Fprintf(out, "\n--- page %d ---\n%s\n", i+1, strings.TrimSpace(text))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "Also print the text of every page")
	return cmd
}

// inspectPDF reads a file on disk or the template of a registered form and
// lists its widgets.
func (a *app) inspectPDF(arg string) ([]byte, []forms.Widget, error) {
	if strings.HasSuffix(strings.ToLower(arg), ".pdf") {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("read pdf: %w", err)
		}
		widgets, err := forms.Widgets(data)
		if err != nil {
			return nil, nil, err
		}
		return data, widgets, nil
	}
	reg, err := a.registry()
	if err != nil {
		return nil, nil, err
	}
	form := forms.FormType(arg)
	data, err := reg.Template(form)
	if err != nil {
		return nil, nil, err
	}
	widgets, err := reg.TemplateWidgets(form)
	if err != nil {
		return nil, nil, err
	}
	return data, widgets, nil
}

func newFormsValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every form schema against its template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				var verr *forms.ValidationError
				if errors.As(err, &verr) {
					for _, p := range verr.Problems {
						fmt.Fprintf(cmd.OutOrStdout(), "✗ %v\n", p)
					}
				}
				return err
			}
			for _, f := range reg.Forms() {
				s, _ := reg.Schema(f)
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s (%d fields)\n", f, len(s.Fields))
			}
			return nil
		},
	}
}

func newFormsFillCmd(a *app) *cobra.Command {
	var (
		valuesJSON string
		valuesFile string
		sets       []string
		sigFile    string
		signedAt   string
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "fill FORM",
		Short: "Fill a form and write the PDF",
		Example: `  onboardops forms fill direct_deposit --set employee_name="John Smith" --set bank1_checking=true --out dd.pdf
  onboardops forms fill i9 --values-file employee.json --signature sig.png --out i9.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			values, err := collectValues(valuesJSON, valuesFile, sets)
			if err != nil {
				return err
			}
			req := forms.FillRequest{Values: values, SignedAt: time.Now()}
			if signedAt != "" {
				t, err := time.Parse("2006-01-02", signedAt)
				if err != nil {
					return fmt.Errorf("parse --signed-at: %w", err)
				}
				req.SignedAt = t
			}
			if sigFile != "" {
				payload, err := readSignature(sigFile)
				if err != nil {
					return err
				}
				req.Signature = payload
			}

			doc, err := forms.NewFiller(reg, a.logger).Fill(cmd.Context(), forms.FormType(args[0]), req)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = doc.Filename()
			}
			if outPath == "-" {
				_, err = cmd.OutOrStdout().Write(doc.Data)
				return err
			}
			if err := os.WriteFile(outPath, doc.Data, 0o644); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			a.logger.Info("form filled", zap.String("form", args[0]), zap.String("out", outPath), zap.Int("bytes", len(doc.Data)))
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&valuesJSON, "values", "", "Values as a JSON object")
	cmd.Flags().StringVar(&valuesFile, "values-file", "", "Read values from a JSON file")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set one value as key=value (repeatable)")
	cmd.Flags().StringVar(&sigFile, "signature", "", "Signature image (PNG/JPEG) or a file holding base64")
	cmd.Flags().StringVar(&signedAt, "signed-at", "", "Signature date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file, - for stdout (default FORM-TIMESTAMP.pdf)")
	return cmd
}

// collectValues merges JSON values and --set assignments, later sources
// winning.
func collectValues(inline, file string, sets []string) (map[string]any, error) {
	values := map[string]any{}
	decode := func(data []byte, src string) error {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("parse %s: %w", src, err)
		}
		for k, v := range m {
			values[k] = v
		}
		return nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read values file: %w", err)
		}
		if err := decode(data, file); err != nil {
			return nil, err
		}
	}
	if inline != "" {
		if err := decode([]byte(inline), "--values"); err != nil {
			return nil, err
		}
	}
	for _, s := range sets {
		k, v, err := forms.ParseAssignment(s)
		if err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, nil
}

// readSignature returns a base64 payload from an image file or from a text
// file that already holds base64 or a data URI.
func readSignature(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read signature: %w", err)
	}
	if sig, err := forms.DecodeSignature(string(data)); err == nil {
		return encodeBase64(sig.Data), nil
	}
	return encodeBase64(data), nil
}
