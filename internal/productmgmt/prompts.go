package productmgmt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompts are the system prompts of the discovery assistant. Any of them
// can be overridden from a YAML file.
//
//	steps:
//	  feature: |
//	    You are helping a team write a feature specification...
//	readme_system: "You are a technical writer creating project documentation."
//
// readme_request is a format string receiving the subject of the README.
// guided receives the stage title, the owning step's type and its title.
type Prompts struct {
	Steps                 map[StepType]string `yaml:"steps"`
	ReadmeSystem          string              `yaml:"readme_system"`
	ReadmeRequestTemplate string              `yaml:"readme_request"`
	GuidedTemplate        string              `yaml:"guided"`
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() *Prompts {
	return &Prompts{
		Steps: map[StepType]string{
			StepVision: `You are a product management AI assistant helping to define a product vision.
Guide the user to articulate:
- Strategic goals and objectives
- Target audience and market
- Success metrics and KPIs
- Long-term vision and impact

Ask clarifying questions and help refine their vision into a clear, actionable statement.`,
			StepInitiative: `You are a product management AI assistant helping to define an initiative.
Guide the user to articulate:
- Specific objectives that support the vision
- Key results (OKRs)
- Timeline and milestones
- Resources needed

Help them break down the vision into actionable initiatives.`,
			StepPortfolio: `You are a product management AI assistant helping to define a product portfolio.
Guide the user to articulate:
- Scope of the portfolio
- Product mix and strategy
- Resource allocation across products
- Dependencies and priorities

Help them organize products that work together toward the initiative.`,
			StepProduct: `You are a product management AI assistant helping to define a product.
Guide the user to articulate:
- Value proposition
- User personas and target users
- Market analysis and competition
- Core capabilities and features

Help them clearly define what the product is and who it serves.`,
			StepFeature: `You are a product management AI assistant helping to define a feature.
Guide the user to articulate:
- User story (As a... I want... So that...)
- Acceptance criteria
- Priority and dependencies
- Technical considerations

Help them create a well-defined, implementable feature specification.`,
		},
		ReadmeSystem: "You are a technical writer creating project documentation.",

		ReadmeRequestTemplate: `Based on the conversation above about this %s,
create a comprehensive README document that captures:

1. Overview and summary
2. Key decisions and conclusions
3. Important details discussed
4. Action items or next steps

Format the README in proper Markdown with appropriate headers, lists, and formatting.
The README should be clear, professional, and useful as project documentation.`,
		GuidedTemplate: `You are a product management AI assistant guiding the user through the "%s" stage of the %s "%s".
Ask focused questions, challenge assumptions and help the user capture clear, actionable conclusions for this stage.`,
	}
}

// LoadPrompts reads overrides from path on top of the defaults.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	for t, text := range override.Steps {
		if !t.Valid() {
			return nil, fmt.Errorf("prompts file %s: %w: %s", path, ErrInvalidStepType, t)
		}
		if strings.TrimSpace(text) != "" {
			p.Steps[t] = text
		}
	}
	if strings.TrimSpace(override.ReadmeSystem) != "" {
		p.ReadmeSystem = override.ReadmeSystem
	}
	if strings.TrimSpace(override.ReadmeRequestTemplate) != "" {
		p.ReadmeRequestTemplate = override.ReadmeRequestTemplate
	}
	if strings.TrimSpace(override.GuidedTemplate) != "" {
		p.GuidedTemplate = override.GuidedTemplate
	}
	return p, nil
}

// System is the prompt for a step type. Unknown types get the vision
// prompt.
func (p *Prompts) System(t StepType) string {
	if s, ok := p.Steps[t]; ok {
		return s
	}
	return p.Steps[StepVision]
}

// ReadmeRequest is the final user turn asking for a README about subject.
func (p *Prompts) ReadmeRequest(subject string) string {
	return fmt.Sprintf(p.ReadmeRequestTemplate, subject)
}

// Guided is the system prompt of a guided stage of step.
func (p *Prompts) Guided(step *WorkflowStep, stage string) string {
	return fmt.Sprintf(p.GuidedTemplate, stage, strings.ToLower(step.StepType.Label()), step.Title)
}
