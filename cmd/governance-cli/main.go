package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/pesio-ai/be-ai-governance/internal/cli"
)

var CLI struct {
	Version kong.VersionFlag
	Policy  string `help:"Governance policy YAML. Defaults apply when omitted." type:"path" env:"GOVERNANCE_POLICY_FILE"`

	ValidatePolicy cli.ValidatePolicyCmd `cmd:"" help:"Validate a policy file and print the effective policy."`
	ROI            cli.ROICmd            `cmd:"" name:"roi" help:"Compute the ROI of a proposal."`
	Evaluate       cli.EvaluateCmd       `cmd:"" help:"Evaluate a proposal against the fast-track criteria."`
	Tier           cli.TierCmd           `cmd:"" help:"Classify a proposal and show its review pathway."`
	Variance       cli.VarianceCmd       `cmd:"" help:"Compare projected and actual value."`
	Trend          cli.TrendCmd          `cmd:"" help:"Report the estimation accuracy trend over a set of reviews."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("governance-cli"),
		kong.Description("Offline checks for AI governance policies and proposals"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	appCtx, err := cli.LoadContext(CLI.Policy, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
