package productmgmt

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// OrgStepInput is the input of the organization scoped create calls.
type OrgStepInput struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PortfolioID   string   `json:"portfolio_id"`
	ProductID     string   `json:"product_id"`
	RepositoryIDs []string `json:"github_repository_ids"`
	RepositoryID  string   `json:"github_repository_id"`
	Priority      string   `json:"priority"`
}

func (in *OrgStepInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return ErrBlankName
	}
	return nil
}

// OrgVision returns the vision of an organization.
func (s *Service) OrgVision(ctx context.Context, orgID string) (*WorkflowStep, error) {
	st, err := s.queryStep(ctx, `s.organization_id = $1 AND s.step_type = $2 ORDER BY s.created_at LIMIT 1`, orgID, string(StepVision))
	if errors.Is(err, ErrStepNotFound) {
		return nil, ErrNoVision
	}
	return st, err
}

// CreateVision creates the single vision of an organization.
func (s *Service) CreateVision(ctx context.Context, orgID, userID string, in OrgStepInput) (*WorkflowStep, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if _, err := s.OrgVision(ctx, orgID); err == nil {
		return nil, ErrVisionExists
	} else if !errors.Is(err, ErrNoVision) {
		return nil, err
	}
	return s.createUnder(ctx, userID, NewStep{
		StepType:       StepVision,
		Title:          in.Name,
		Description:    in.Description,
		Status:         StatusBacklog,
		OrganizationID: orgID,
	}, nil)
}

// nameTaken reports whether parent already has a child of type t named
// name, ignoring case.
func (s *Service) nameTaken(ctx context.Context, parentID string, t StepType, name string) (bool, error) {
	var n int
	err := s.store.Q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_steps
		WHERE parent_id = $1 AND step_type = $2 AND LOWER(title) = LOWER($3)`, parentID, string(t), name).Scan(&n)
	return n > 0, err
}

// linkedStep loads step id of type t and checks that it hangs below the
// organization vision.
func (s *Service) linkedStep(ctx context.Context, vision *WorkflowStep, id string, t StepType, notFound, notLinked error) (*WorkflowStep, error) {
	if id == "" {
		return nil, notFound
	}
	st, err := s.load(ctx, id)
	if errors.Is(err, ErrStepNotFound) || (err == nil && st.StepType != t) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	root, err := s.RootVision(ctx, st)
	if err != nil {
		return nil, err
	}
	if root == nil || root.ID != vision.ID {
		return nil, notLinked
	}
	return st, nil
}

// CreatePortfolio creates a portfolio directly under the organization
// vision.
func (s *Service) CreatePortfolio(ctx context.Context, orgID, userID string, in OrgStepInput) (*WorkflowStep, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	vision, err := s.OrgVision(ctx, orgID)
	if err != nil {
		return nil, err
	}
	taken, err := s.nameTaken(ctx, vision.ID, StepPortfolio, in.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicatePortfolio
	}
	return s.createUnder(ctx, userID, NewStep{
		StepType:    StepPortfolio,
		Title:       in.Name,
		Description: in.Description,
		Status:      StatusBacklog,
	}, vision)
}

// CreateProduct creates a product under a portfolio of the organization.
func (s *Service) CreateProduct(ctx context.Context, orgID, userID string, in OrgStepInput) (*WorkflowStep, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	vision, err := s.OrgVision(ctx, orgID)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.linkedStep(ctx, vision, in.PortfolioID, StepPortfolio, ErrPortfolioNotFound, ErrPortfolioNotLinked)
	if err != nil {
		return nil, err
	}
	taken, err := s.nameTaken(ctx, portfolio.ID, StepProduct, in.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateProduct
	}
	return s.createUnder(ctx, userID, NewStep{
		StepType:      StepProduct,
		Title:         in.Name,
		Description:   in.Description,
		Status:        StatusBacklog,
		RepositoryIDs: in.RepositoryIDs,
	}, portfolio)
}

// CreateFeature creates a feature under a product of the organization.
func (s *Service) CreateFeature(ctx context.Context, orgID, userID string, in OrgStepInput) (*WorkflowStep, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	vision, err := s.OrgVision(ctx, orgID)
	if err != nil {
		return nil, err
	}
	product, err := s.linkedStep(ctx, vision, in.ProductID, StepProduct, ErrProductNotFound, ErrProductNotLinked)
	if err != nil {
		return nil, err
	}
	taken, err := s.nameTaken(ctx, product.ID, StepFeature, in.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrDuplicateFeature
	}
	return s.createUnder(ctx, userID, NewStep{
		StepType:     StepFeature,
		Title:        in.Name,
		Description:  in.Description,
		Status:       StatusBacklog,
		RepositoryID: strings.TrimSpace(in.RepositoryID),
		Details:      Details{Priority: in.Priority},
	}, product)
}

// children lists the steps of type t whose parent is one of parents,
// ordered by creation.
func (s *Service) children(ctx context.Context, parents []*WorkflowStep, t StepType) ([]*WorkflowStep, error) {
	out := []*WorkflowStep{}
	if len(parents) == 0 {
		return out, nil
	}
	args := []any{string(t)}
	marks := make([]string, len(parents))
	for i, p := range parents {
		args = append(args, p.ID)
		marks[i] = "$" + strconv.Itoa(i+2)
	}
	list, err := s.queryStepList(ctx, `s.step_type = $1 AND s.parent_id IN (`+strings.Join(marks, ", ")+`)
		ORDER BY s.created_at, s.reference_id`, args...)
	if err != nil {
		return nil, err
	}
	for _, st := range list {
		if err := s.withRepositories(ctx, st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Portfolios lists the portfolios of the organization vision.
func (s *Service) Portfolios(ctx context.Context, orgID string) ([]*WorkflowStep, error) {
	vision, err := s.OrgVision(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.children(ctx, []*WorkflowStep{vision}, StepPortfolio)
}

// Products lists the products of all organization portfolios.
func (s *Service) Products(ctx context.Context, orgID string) ([]*WorkflowStep, error) {
	portfolios, err := s.Portfolios(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.children(ctx, portfolios, StepProduct)
}

// Features lists the features of all organization products.
func (s *Service) Features(ctx context.Context, orgID string) ([]*WorkflowStep, error) {
	products, err := s.Products(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.children(ctx, products, StepFeature)
}
