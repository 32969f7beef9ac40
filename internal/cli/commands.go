package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ai-governance/internal/config"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

type ValidatePolicyCmd struct {
	File string `arg:"" help:"Policy YAML file." type:"existingfile"`
}

func (c *ValidatePolicyCmd) Run(ctx *Context) error {
	pf, err := config.LoadPolicyFile(c.File)
	if err != nil {
		return err
	}

	grants := make(map[string]int, len(pf.Grants))
	for capability, ids := range pf.Grants {
		grants[string(capability)] = len(ids)
	}
	out := map[string]interface{}{
		"valid":  true,
		"policy": pf.Policy,
		"grants": grants,
	}
	if pf.Rates != nil {
		out["rate_table_version"] = pf.Rates.Version
		out["grades"] = pf.Rates.Grades()
	}
	return ctx.print(out)
}

type ROICmd struct {
	Proposal string `arg:"" help:"Proposal YAML file." type:"existingfile"`
	AsOf     string `help:"Value time savings with the rates effective on this date (YYYY-MM-DD or 'today')." default:"today"`
}

func (c *ROICmd) Run(ctx *Context) error {
	p, err := readProposal(c.Proposal)
	if err != nil {
		return err
	}
	asOf, err := parseAsOf(c.AsOf)
	if err != nil {
		return err
	}
	if ctx.Policy.Rates == nil {
		return fmt.Errorf("no rate table: pass --policy with a rates section")
	}

	summary, err := governance.ComputeROI(p.TimeSavings, ctx.Policy.Rates, asOf, p.Cost)
	if err != nil {
		return err
	}
	return ctx.print(summary)
}

type EvaluateCmd struct {
	Proposal string `arg:"" help:"Proposal YAML file." type:"existingfile"`
}

func (c *EvaluateCmd) Run(ctx *Context) error {
	p, err := readProposal(c.Proposal)
	if err != nil {
		return err
	}
	return ctx.print(governance.EvaluateCriteria(p, ctx.Policy.Policy.Thresholds))
}

type TierCmd struct {
	Proposal string `arg:"" help:"Proposal YAML file." type:"existingfile"`
}

func (c *TierCmd) Run(ctx *Context) error {
	p, err := readProposal(c.Proposal)
	if err != nil {
		return err
	}
	thresholds := ctx.Policy.Policy.Thresholds
	tier := governance.ClassifyTier(p, thresholds)
	criteria := governance.EvaluateCriteria(p, thresholds)

	return ctx.print(map[string]interface{}{
		"tier":    tier.Info(),
		"pathway": governance.SelectPathway(tier, criteria, nil, false),
	})
}

type VarianceCmd struct {
	Projected     int64 `required:"" help:"Projected annual value in pence."`
	Actual        int64 `required:"" help:"Actual annual value in pence."`
	ProjectedCost int64 `help:"Projected cost in pence."`
	ActualCost    int64 `help:"Actual cost in pence."`
}

func (c *VarianceCmd) Run(ctx *Context) error {
	if c.Projected < 0 || c.Actual < 0 || c.ProjectedCost < 0 || c.ActualCost < 0 {
		return fmt.Errorf("values cannot be negative")
	}
	rv := &governance.ImplementationReview{
		ProjectedAnnualValue: c.Projected,
		ActualAnnualValue:    c.Actual,
		ProjectedCost:        c.ProjectedCost,
		ActualCost:           c.ActualCost,
	}
	rv.Analyze(ctx.Policy.Policy.Review)

	return ctx.print(map[string]interface{}{
		"variance_percentage":      rv.VariancePercentage,
		"cost_variance_percentage": rv.CostVariancePercentage,
		"accuracy":                 rv.Accuracy,
	})
}

// reviewRecord is one review in a trend input file.
type reviewRecord struct {
	Date      string `yaml:"date"`
	Projected int64  `yaml:"projected"`
	Actual    int64  `yaml:"actual"`
}

type TrendCmd struct {
	Reviews string `arg:"" help:"YAML list of reviews with date, projected and actual." type:"existingfile"`
	AsOf    string `help:"End of the most recent window (YYYY-MM-DD or 'today')." default:"today"`
}

func (c *TrendCmd) Run(ctx *Context) error {
	data, err := os.ReadFile(c.Reviews)
	if err != nil {
		return fmt.Errorf("read reviews: %w", err)
	}
	var records []reviewRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse reviews %s: %w", c.Reviews, err)
	}
	asOf, err := parseAsOf(c.AsOf)
	if err != nil {
		return err
	}

	policy := ctx.Policy.Policy.Review
	reviews := make([]*governance.ImplementationReview, 0, len(records))
	for i, r := range records {
		at, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return fmt.Errorf("review %d: invalid date %q", i, r.Date)
		}
		rv := &governance.ImplementationReview{
			ProjectedAnnualValue: r.Projected,
			ActualAnnualValue:    r.Actual,
			CreatedAt:            at,
		}
		rv.Analyze(policy)
		reviews = append(reviews, rv)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })

	return ctx.print(governance.ComputeTrend(reviews, asOf, policy))
}
