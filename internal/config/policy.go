package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

//go:embed policy.schema.json
var policySchemaJSON []byte

// PolicyFile is the parsed governance policy: thresholds over the built-in
// defaults, an optional rate table and the capability grants to seed.
type PolicyFile struct {
	Policy governance.Policy
	Rates  *governance.RateTable
	// Grants maps each capability to the identities that hold it.
	Grants map[governance.Capability][]string
}

// SchemaError is one schema violation at a path in the policy document.
type SchemaError struct {
	Path    string
	Message string
}

// PolicyError lists every problem found in a policy file.
type PolicyError struct {
	File   string
	Errors []SchemaError
}

func (e *PolicyError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %s", se.Path, se.Message)
	}
	return fmt.Sprintf("invalid policy file %s: %s", e.File, strings.Join(parts, "; "))
}

type policyDoc struct {
	Thresholds struct {
		AutoApproveMaxCost           *int64  `yaml:"auto_approve_max_cost"`
		AutoApproveMaxRisk           *int    `yaml:"auto_approve_max_risk"`
		AutoApproveMaxClassification *string `yaml:"auto_approve_max_classification"`
		FastTrackMaxCost             *int64  `yaml:"fast_track_max_cost"`
		FastTrackMaxRisk             *int    `yaml:"fast_track_max_risk"`
		FastTrackMaxClassification   *string `yaml:"fast_track_max_classification"`
		PartnerMinCost               *int64  `yaml:"partner_min_cost"`
		PartnerMinRisk               *int    `yaml:"partner_min_risk"`
	} `yaml:"thresholds"`
	Voting struct {
		FastTrackApprovals      *int    `yaml:"fast_track_approvals"`
		FastTrackUnanimous      *int    `yaml:"fast_track_unanimous"`
		FastTrackRejections     *int    `yaml:"fast_track_rejections"`
		FullOversightPanelSize  *int    `yaml:"full_oversight_panel_size"`
		FullOversightApprovals  *int    `yaml:"full_oversight_approvals"`
		FullOversightRejections *int    `yaml:"full_oversight_rejections"`
		FullOversightDeadline   *string `yaml:"full_oversight_deadline"`
	} `yaml:"voting"`
	Review struct {
		AccuracyTolerancePercent *float64 `yaml:"accuracy_tolerance_percent"`
		TrendWindowMonths        *int     `yaml:"trend_window_months"`
		TrendStableBandPercent   *float64 `yaml:"trend_stable_band_percent"`
	} `yaml:"review"`
	Rates *struct {
		Version string `yaml:"version"`
		Entries []struct {
			Grade         string  `yaml:"grade"`
			HourlyRate    int64   `yaml:"hourly_rate"`
			EffectiveFrom string  `yaml:"effective_from"`
			EffectiveTo   *string `yaml:"effective_to"`
		} `yaml:"entries"`
	} `yaml:"rates"`
	Grants map[string][]string `yaml:"grants"`
}

// LoadPolicyFile reads, schema-validates and parses a policy file.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	pf, err := ParsePolicy(data)
	if perr, ok := err.(*PolicyError); ok {
		perr.File = path
	}
	return pf, err
}

// ParsePolicy validates data against the policy schema and merges it over
// governance.DefaultPolicy.
func ParsePolicy(data []byte) (*PolicyFile, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var doc policyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}

	var problems []SchemaError
	fail := func(path, msg string) { problems = append(problems, SchemaError{Path: path, Message: msg}) }

	policy := governance.DefaultPolicy()
	th := &policy.Thresholds
	setMoney(&th.AutoApproveMaxCost, doc.Thresholds.AutoApproveMaxCost)
	setInt(&th.AutoApproveMaxRisk, doc.Thresholds.AutoApproveMaxRisk)
	setMoney(&th.FastTrackMaxCost, doc.Thresholds.FastTrackMaxCost)
	setInt(&th.FastTrackMaxRisk, doc.Thresholds.FastTrackMaxRisk)
	setMoney(&th.PartnerMinCost, doc.Thresholds.PartnerMinCost)
	setInt(&th.PartnerMinRisk, doc.Thresholds.PartnerMinRisk)
	if c := doc.Thresholds.AutoApproveMaxClassification; c != nil {
		th.AutoApproveMaxClassification = governance.DataClassification(*c)
	}
	if c := doc.Thresholds.FastTrackMaxClassification; c != nil {
		th.FastTrackMaxClassification = governance.DataClassification(*c)
	}

	v := &policy.Voting
	setInt(&v.FastTrackApprovals, doc.Voting.FastTrackApprovals)
	setInt(&v.FastTrackUnanimous, doc.Voting.FastTrackUnanimous)
	setInt(&v.FastTrackRejections, doc.Voting.FastTrackRejections)
	setInt(&v.FullOversightPanelSize, doc.Voting.FullOversightPanelSize)
	setInt(&v.FullOversightApprovals, doc.Voting.FullOversightApprovals)
	setInt(&v.FullOversightRejections, doc.Voting.FullOversightRejections)
	if d := doc.Voting.FullOversightDeadline; d != nil {
		parsed, err := time.ParseDuration(*d)
		if err != nil {
			fail("voting.full_oversight_deadline", err.Error())
		} else {
			v.FullOversightDeadline = parsed
		}
	}

	r := &policy.Review
	if doc.Review.AccuracyTolerancePercent != nil {
		r.AccuracyTolerancePercent = *doc.Review.AccuracyTolerancePercent
	}
	setInt(&r.TrendWindowMonths, doc.Review.TrendWindowMonths)
	if doc.Review.TrendStableBandPercent != nil {
		r.TrendStableBandPercent = *doc.Review.TrendStableBandPercent
	}

	if err := policy.Validate(); err != nil {
		fail("policy", err.Error())
	}

	pf := &PolicyFile{Policy: policy, Grants: make(map[governance.Capability][]string)}

	if doc.Rates != nil {
		rates := &governance.RateTable{Version: doc.Rates.Version}
		for i, e := range doc.Rates.Entries {
			path := fmt.Sprintf("rates.entries.%d", i)
			entry := governance.RateEntry{Grade: governance.NormalizeGrade(e.Grade), HourlyRate: e.HourlyRate}
			from, err := parseDate(e.EffectiveFrom)
			if err != nil {
				fail(path+".effective_from", err.Error())
			}
			entry.EffectiveFrom = from
			if e.EffectiveTo != nil {
				to, err := parseDate(*e.EffectiveTo)
				if err != nil {
					fail(path+".effective_to", err.Error())
				} else if !to.After(from) {
					fail(path+".effective_to", "must be after effective_from")
				}
				entry.EffectiveTo = &to
			}
			rates.Entries = append(rates.Entries, entry)
		}
		pf.Rates = rates
	}

	names := make([]string, 0, len(doc.Grants))
	for name := range doc.Grants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c, err := governance.ParseCapability(name)
		if err != nil {
			fail("grants."+name, err.Error())
			continue
		}
		pf.Grants[c] = append(pf.Grants[c], doc.Grants[name]...)
	}

	if len(problems) > 0 {
		return nil, &PolicyError{Errors: problems}
	}
	return pf, nil
}

var policySchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(policySchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("policy schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("policy.schema.json", doc); err != nil {
		panic(fmt.Sprintf("policy schema: %v", err))
	}
	s, err := c.Compile("policy.schema.json")
	if err != nil {
		panic(fmt.Sprintf("policy schema: %v", err))
	}
	return s
}

// validateSchema converts YAML to its JSON form and validates it, reporting
// every violation with its path.
func validateSchema(data []byte) error {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parse policy YAML: %w", err)
	}
	if generic == nil {
		generic = map[string]interface{}{}
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("convert policy to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("convert policy to JSON: %w", err)
	}

	err = policySchema.Validate(inst)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	perr := &PolicyError{}
	collectSchemaErrors(verr, perr)
	return perr
}

// collectSchemaErrors keeps leaf causes; parents only repeat them.
func collectSchemaErrors(err *jsonschema.ValidationError, out *PolicyError) {
	if len(err.Causes) == 0 {
		path := strings.Join(err.InstanceLocation, ".")
		if path == "" {
			path = "(root)"
		}
		out.Errors = append(out.Errors, SchemaError{Path: path, Message: err.Error()})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, out)
	}
}

func parseDate(s string) (time.Time, error) {
	if len(s) > len("2006-01-02") {
		s = s[:len("2006-01-02")]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setMoney(dst *governance.Money, v *int64) {
	if v != nil {
		*dst = *v
	}
}
