// Package cli implements governance-cli, an offline tool for checking policy
// files and evaluating proposals without a running service.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/config"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// Context is shared by every command.
type Context struct {
	Out    io.Writer
	Policy *config.PolicyFile
}

// LoadContext builds a Context from an optional policy file. Without one the
// built-in defaults apply and no rate table is loaded.
func LoadContext(policyPath string, out io.Writer) (*Context, error) {
	pf := &config.PolicyFile{Policy: governance.DefaultPolicy()}
	if policyPath != "" {
		loaded, err := config.LoadPolicyFile(policyPath)
		if err != nil {
			return nil, err
		}
		pf = loaded
	}
	return &Context{Out: out, Policy: pf}, nil
}

func (c *Context) print(v interface{}) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// proposalFile is the YAML form of a proposal.
type proposalFile struct {
	Title              string                       `yaml:"title"`
	Problem            string                       `yaml:"problem"`
	Solution           string                       `yaml:"solution"`
	Team               string                       `yaml:"team"`
	Cost               *int64                       `yaml:"cost"`
	RiskScore          *int                         `yaml:"risk_score"`
	DataClassification *string                      `yaml:"data_classification"`
	EscalationTriggers []string                     `yaml:"escalation_triggers"`
	TimeSavings        []governance.TimeSavingEntry `yaml:"time_savings"`
}

func readProposal(path string) (*governance.Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var f proposalFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse proposal %s: %w", path, err)
	}

	p := &governance.Proposal{
		Title:              f.Title,
		Problem:            f.Problem,
		Solution:           f.Solution,
		Team:               f.Team,
		Cost:               f.Cost,
		RiskScore:          f.RiskScore,
		EscalationTriggers: f.EscalationTriggers,
		TimeSavings:        f.TimeSavings,
	}
	if f.DataClassification != nil {
		c, err := governance.ParseDataClassification(*f.DataClassification)
		if err != nil {
			return nil, fmt.Errorf("proposal %s: %w", path, err)
		}
		p.DataClassification = &c
	}

	var v errors.Validation
	p.CheckFields(&v, nil)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("proposal %s: %w", path, err)
	}
	return p, nil
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" || s == "today" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format, use YYYY-MM-DD or 'today': %w", err)
	}
	return t, nil
}
