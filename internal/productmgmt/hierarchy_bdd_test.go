package productmgmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/cucumber/godog"
)

// hierarchyBDDContext holds the state of one hierarchy scenario.
type hierarchyBDDContext struct {
	t     *testing.T
	f     *fixture
	repo  string
	steps map[string]*WorkflowStep
	err   error
}

func (c *hierarchyBDDContext) reset() {
	c.f = newFixture(c.t)
	c.repo = ""
	c.steps = map[string]*WorkflowStep{}
	c.err = nil
}

func (c *hierarchyBDDContext) aProductManagerWithALinkedRepository() error {
	c.repo = c.f.repository(c.t, c.f.alice, "wallet")
	return nil
}

func (c *hierarchyBDDContext) newStep(kind, title, parent string) (*WorkflowStep, error) {
	in := NewStep{StepType: StepType(kind), Title: title}
	if parent != "" {
		p, ok := c.steps[parent]
		if !ok {
			return nil, fmt.Errorf("no step named %q", parent)
		}
		in.ParentID = p.ID
	}
	switch in.StepType {
	case StepProduct:
		in.RepositoryIDs = []string{c.repo}
	case StepFeature:
		in.RepositoryID = c.repo
	}
	st, err := c.f.svc.CreateStep(context.Background(), c.f.alice, in)
	if err != nil {
		return nil, err
	}
	c.steps[title] = st
	return st, nil
}

func (c *hierarchyBDDContext) iCreate(kind, title string) error {
	_, err := c.newStep(kind, title, "")
	return err
}

func (c *hierarchyBDDContext) iCreateUnder(kind, title, parent string) error {
	_, err := c.newStep(kind, title, parent)
	return err
}

func (c *hierarchyBDDContext) iTryToCreateUnder(kind, title, parent string) error {
	_, c.err = c.newStep(kind, title, parent)
	return nil
}

func (c *hierarchyBDDContext) iTryToCreateWithoutAParent(kind, title string) error {
	_, c.err = c.newStep(kind, title, "")
	return nil
}

func (c *hierarchyBDDContext) iTryToCreateAFeatureWithoutARepository(title, parent string) error {
	p, err := c.lookup(parent)
	if err != nil {
		return err
	}
	_, c.err = c.f.svc.CreateStep(context.Background(), c.f.alice, NewStep{StepType: StepFeature, Title: title, ParentID: p.ID})
	return nil
}

func (c *hierarchyBDDContext) lookup(title string) (*WorkflowStep, error) {
	st, ok := c.steps[title]
	if !ok {
		return nil, fmt.Errorf("no step named %q", title)
	}
	return st, nil
}

func (c *hierarchyBDDContext) hasReference(title, ref string) error {
	st, err := c.lookup(title)
	if err != nil {
		return err
	}
	if st.ReferenceID != ref {
		return fmt.Errorf("%q has reference %s, want %s", title, st.ReferenceID, ref)
	}
	return nil
}

func (c *hierarchyBDDContext) hasGuidedSteps(title string, n int) error {
	st, err := c.lookup(title)
	if err != nil {
		return err
	}
	stages, err := c.f.svc.GuidedSteps(context.Background(), c.f.alice, st.ID)
	if err != nil {
		return err
	}
	if len(stages) != n {
		return fmt.Errorf("%q has %d guided steps, want %d", title, len(stages), n)
	}
	return nil
}

// theStepIsRejectedWith compares the message an API client would see.
func (c *hierarchyBDDContext) theStepIsRejectedWith(msg string) error {
	if c.err == nil {
		return errors.New("step was accepted")
	}
	rec := httptest.NewRecorder()
	writeErr(rec, c.err)
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		return err
	}
	if body.Error != msg {
		return fmt.Errorf("rejected with %q, want %q", body.Error, msg)
	}
	return nil
}

func (c *hierarchyBDDContext) iDelete(title string) error {
	st, err := c.lookup(title)
	if err != nil {
		return err
	}
	_, err = c.f.svc.DeleteStep(context.Background(), c.f.alice, st.ID)
	return err
}

func (c *hierarchyBDDContext) noLongerExists(title string) error {
	st, err := c.lookup(title)
	if err != nil {
		return err
	}
	_, err = c.f.svc.Step(context.Background(), c.f.alice, st.ID)
	if !errors.Is(err, ErrStepNotFound) {
		return fmt.Errorf("%q still loads: %v", title, err)
	}
	return nil
}

const stepKinds = `(vision|initiative|portfolio|product|feature)`

func initializeHierarchyScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		c := &hierarchyBDDContext{t: t}
		ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
			c.reset()
			return ctx, nil
		})

		ctx.Step(`^a product manager with a linked repository$`, c.aProductManagerWithALinkedRepository)
		ctx.Step(`^(?:I create )?an? `+stepKinds+` "([^"]*)"$`, c.iCreate)
		ctx.Step(`^(?:I create )?an? `+stepKinds+` "([^"]*)" under "([^"]*)"$`, c.iCreateUnder)
		ctx.Step(`^I try to create an? `+stepKinds+` "([^"]*)" under "([^"]*)"$`, c.iTryToCreateUnder)
		ctx.Step(`^I try to create an? `+stepKinds+` "([^"]*)" without a parent$`, c.iTryToCreateWithoutAParent)
		ctx.Step(`^I try to create a feature "([^"]*)" under "([^"]*)" without a repository$`, c.iTryToCreateAFeatureWithoutARepository)
		ctx.Step(`^"([^"]*)" has reference "([^"]*)"$`, c.hasReference)
		ctx.Step(`^"([^"]*)" has (\d+) guided steps$`, c.hasGuidedSteps)
		ctx.Step(`^the step is rejected with "([^"]*)"$`, c.theStepIsRejectedWith)
		ctx.Step(`^I delete "([^"]*)"$`, c.iDelete)
		ctx.Step(`^"([^"]*)" no longer exists$`, c.noLongerExists)
	}
}

func TestHierarchyFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeHierarchyScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/hierarchy.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
