package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const budgetColumns = `id, organization_id, department_id, team_id, name, period, start_date, end_date,
	total_budget, spent_amount, notes, is_active, created_at`

func scanBudget(row store.Scanner) (*Budget, error) {
	var b Budget
	var dept, team sql.NullString
	if err := row.Scan(&b.ID, &b.OrganizationID, &dept, &team, &b.Name, &b.Period, &b.StartDate, &b.EndDate,
		&b.TotalBudget, &b.SpentAmount, &b.Notes, &b.IsActive, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.DepartmentID, b.TeamID = dept.String, team.String
	return &b, nil
}

// CreateBudget inserts an active budget with nothing spent.
func (s *Service) CreateBudget(ctx context.Context, b Budget) (*Budget, error) {
	b.Name = strings.TrimSpace(b.Name)
	if !b.Period.Valid() {
		return nil, ErrInvalidPeriod
	}
	if b.TotalBudget < 0 {
		return nil, ErrInvalidAmount
	}
	if b.EndDate.Before(b.StartDate) {
		return nil, ErrInvalidDateRange
	}
	if err := s.checkScope(ctx, b.OrganizationID, b.DepartmentID, b.TeamID, ""); err != nil {
		return nil, err
	}
	b.StartDate, b.EndDate = b.StartDate.UTC(), b.EndDate.UTC()
	now := s.store.Now()
	b.ID = store.NewID()
	b.SpentAmount = 0
	b.IsActive = true
	b.CreatedAt = now
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO budgets (`+budgetColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.OrganizationID, store.NullString(b.DepartmentID), store.NullString(b.TeamID), b.Name, b.Period,
		b.StartDate, b.EndDate, b.TotalBudget, b.SpentAmount, b.Notes, b.IsActive, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget: %w", err)
	}
	return &b, nil
}

// GetBudget loads one budget.
func (s *Service) GetBudget(ctx context.Context, id string) (*Budget, error) {
	b, err := scanBudget(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "budget")
	}
	return b, nil
}

// ListBudgets returns an organization's budgets, latest period first.
func (s *Service) ListBudgets(ctx context.Context, orgID string) ([]Budget, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+budgetColumns+` FROM budgets
		WHERE organization_id = $1 ORDER BY start_date DESC, name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var out []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// MatchingBudget finds the active budget an expense is charged to: same
// organization, same department and team where the expense names them, and
// a period covering the expense date.
func (s *Service) MatchingBudget(ctx context.Context, exp *Expense) (*Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets
		WHERE organization_id = $1 AND is_active = TRUE AND start_date <= $2 AND end_date >= $2`
	day := exp.ExpenseDate.UTC().Truncate(24 * time.Hour)
	args := []any{exp.OrganizationID, day}
	if exp.DepartmentID != "" {
		args = append(args, exp.DepartmentID)
		query += fmt.Sprintf(" AND department_id = $%d", len(args))
	}
	if exp.TeamID != "" {
		args = append(args, exp.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	b, err := scanBudget(s.store.Q(ctx).QueryRowContext(ctx, query+" ORDER BY start_date DESC, created_at LIMIT 1", args...))
	if err != nil {
		return nil, store.NotFound(err, "budget")
	}
	return b, nil
}

// chargeBudget adds the expense amount to its matching budget, if any.
func (s *Service) chargeBudget(ctx context.Context, exp *Expense) error {
	b, err := s.MatchingBudget(ctx, exp)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.store.Q(ctx).ExecContext(ctx,
		`UPDATE budgets SET spent_amount = spent_amount + $1, updated_at = $2 WHERE id = $3`,
		exp.Amount, s.store.Now(), b.ID)
	if err != nil {
		return fmt.Errorf("failed to charge budget: %w", err)
	}
	return nil
}
