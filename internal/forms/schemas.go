package forms

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultFont = "Helvetica"
	defaultSize = 10
)

func text(key, widget string) FieldSpec {
	return FieldSpec{Key: key, Kind: KindText, Widget: widget}
}

func check(key, widget string) FieldSpec {
	return FieldSpec{Key: key, Kind: KindCheckbox, Widget: widget}
}

func overlayText(key string, page int, x, y, maxWidth float64) FieldSpec {
	return FieldSpec{Key: key, Kind: KindText, Overlay: &Overlay{
		Page: page, X: x, Y: y, Font: defaultFont, Size: defaultSize, MaxWidth: maxWidth,
	}}
}

// DefaultSchemas returns the FieldMappings for the bundled templates.
func DefaultSchemas() []Schema {
	return []Schema{
		{
			Form:     FormDirectDeposit,
			Title:    "Direct Deposit Authorization",
			Template: "direct_deposit.pdf",
			Fields: []FieldSpec{
				text("employee_name", "employee_name"),
				text("employee_ssn", "employee_ssn"),
				text("employee_email", "employee_email"),
				text("bank1_name", "bank1_name"),
				text("bank1_routing_number", "bank1_routing_number"),
				text("bank1_account_number", "bank1_account_number"),
				text("bank1_amount", "bank1_amount"),
				check("bank1_checking", "bank1_checking"),
				check("bank1_savings", "bank1_savings"),
				text("bank2_name", "bank2_name"),
				text("bank2_routing_number", "bank2_routing_number"),
				text("bank2_account_number", "bank2_account_number"),
				text("bank2_amount", "bank2_amount"),
				check("bank2_checking", "bank2_checking"),
				check("bank2_savings", "bank2_savings"),
				check("deposit_entire_net", "deposit_entire_net"),
				text("signature_date", "signature_date"),
			},
			Sign:      &SignatureBox{Page: 1, X: 50, Y: 205, Width: 220, Height: 55},
			DateField: "signature_date",
		},
		{
			Form:     FormW4,
			Title:    "Form W-4 Employee's Withholding Certificate",
			Template: "w4.pdf",
			Fields: []FieldSpec{
				text("first_name", "f1_first_name"),
				text("last_name", "f1_last_name"),
				text("ssn", "f1_ssn"),
				text("address", "f1_address"),
				text("city_state_zip", "f1_city_state_zip"),
				check("filing_single", "c1_single"),
				check("filing_married", "c1_married"),
				check("filing_head_of_household", "c1_head_of_household"),
				check("multiple_jobs", "c2_multiple_jobs"),
				text("dependents_amount", "f3_dependents"),
				text("other_income", "f4a_other_income"),
				text("deductions", "f4b_deductions"),
				text("extra_withholding", "f4c_extra_withholding"),
				text("signature_date", "f5_date"),
			},
			Sign:      &SignatureBox{Page: 1, X: 50, Y: 205, Width: 220, Height: 55},
			DateField: "signature_date",
		},
		{
			Form:     FormI9,
			Title:    "Form I-9 Section 1",
			Template: "i9.pdf",
			Fields: []FieldSpec{
				text("last_name", "s1_last_name"),
				text("first_name", "s1_first_name"),
				text("middle_initial", "s1_middle_initial"),
				text("other_last_names", "s1_other_last_names"),
				text("address", "s1_address"),
				text("apt_number", "s1_apt_number"),
				text("city", "s1_city"),
				text("state", "s1_state"),
				text("zip", "s1_zip"),
				text("date_of_birth", "s1_date_of_birth"),
				text("ssn", "s1_ssn"),
				text("email", "s1_email"),
				text("phone", "s1_phone"),
				check("citizen", "s1_citizen"),
				check("noncitizen_national", "s1_noncitizen_national"),
				check("permanent_resident", "s1_permanent_resident"),
				check("alien_authorized", "s1_alien_authorized"),
				text("uscis_number", "s1_uscis_number"),
				text("work_auth_expiration", "s1_work_auth_expiration"),
				text("signature_date", "s1_signature_date"),
			},
			Sign:      &SignatureBox{Page: 1, X: 50, Y: 205, Width: 220, Height: 55},
			DateField: "signature_date",
		},
		{
			Form:     FormHealthInsurance,
			Title:    "Health Insurance Enrollment",
			Template: "health_insurance.pdf",
			Fields: []FieldSpec{
				text("employee_name", "employee_name"),
				text("employee_id", "employee_id"),
				text("property_name", "property_name"),
				check("plan_hmo", "plan_hmo"),
				check("plan_ppo", "plan_ppo"),
				check("plan_hra", "plan_hra"),
				check("coverage_employee", "coverage_employee"),
				check("coverage_spouse", "coverage_spouse"),
				check("coverage_family", "coverage_family"),
				text("dependent1_name", "dependent1_name"),
				text("dependent1_dob", "dependent1_dob"),
				text("dependent1_relationship", "dependent1_relationship"),
				text("dependent2_name", "dependent2_name"),
				text("dependent2_dob", "dependent2_dob"),
				text("dependent2_relationship", "dependent2_relationship"),
				text("effective_date", "effective_date"),
				check("decline_coverage", "decline_coverage"),
				text("signature_date", "signature_date"),
			},
			Sign:      &SignatureBox{Page: 1, X: 50, Y: 205, Width: 220, Height: 55},
			DateField: "signature_date",
		},
		{
			Form:     FormWeaponsPolicy,
			Title:    "Weapons Policy Acknowledgment",
			Template: "weapons_policy.pdf",
			Fields: []FieldSpec{
				overlayText("employee_name", 1, 160, 500, 300),
				overlayText("employee_id", 1, 160, 470, 150),
				overlayText("property_name", 1, 160, 440, 300),
				overlayText("position", 1, 160, 410, 300),
				overlayText("signature_date", 1, 410, 265, 120),
			},
			Sign:      &SignatureBox{Page: 1, X: 150, Y: 250, Width: 200, Height: 45},
			DateField: "signature_date",
		},
	}
}

type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadSchemaFile reads schema overrides from YAML. Overlay fields default to
// Helvetica 10pt when font or size are omitted.
func LoadSchemaFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchemas(data)
}

// ParseSchemas decodes a YAML schema document.
func ParseSchemas(data []byte) ([]Schema, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	for i := range file.Schemas {
		for j := range file.Schemas[i].Fields {
			if ov := file.Schemas[i].Fields[j].Overlay; ov != nil {
				if ov.Font == "" {
					ov.Font = defaultFont
				}
				if ov.Size == 0 {
					ov.Size = defaultSize
				}
			}
		}
	}
	return file.Schemas, nil
}

// MergeSchemas replaces base schemas with overrides of the same form type and
// appends new form types.
func MergeSchemas(base, overrides []Schema) []Schema {
	out := make([]Schema, 0, len(base)+len(overrides))
	index := make(map[FormType]int, len(base))
	for _, s := range base {
		index[s.Form] = len(out)
		out = append(out, s)
	}
	for _, s := range overrides {
		if i, ok := index[s.Form]; ok {
			out[i] = s
			continue
		}
		index[s.Form] = len(out)
		out = append(out, s)
	}
	return out
}
