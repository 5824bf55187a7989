package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const expenseColumns = `id, organization_id, member_id, department_id, team_id, account_id, title, description,
	category, amount, currency, expense_date, status, approved_by, approved_at, rejection_reason,
	paid_at, payment_method, payment_reference, receipt_url, created_at`

func scanExpense(row store.Scanner) (*Expense, error) {
	var e Expense
	var dept, team, account, approvedBy sql.NullString
	var approvedAt, paidAt sql.NullTime
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.MemberID, &dept, &team, &account, &e.Title, &e.Description,
		&e.Category, &e.Amount, &e.Currency, &e.ExpenseDate, &e.Status, &approvedBy, &approvedAt, &e.RejectionReason,
		&paidAt, &e.PaymentMethod, &e.PaymentReference, &e.ReceiptURL, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.DepartmentID, e.TeamID, e.AccountID, e.ApprovedBy = dept.String, team.String, account.String, approvedBy.String
	e.ApprovedDate, e.PaidDate = store.TimePtr(approvedAt), store.TimePtr(paidAt)
	return &e, nil
}

// CreateExpense submits exp as PENDING.
func (s *Service) CreateExpense(ctx context.Context, exp Expense) (*Expense, error) {
	exp.Title = strings.TrimSpace(exp.Title)
	if exp.Amount < 1 {
		return nil, ErrInvalidAmount
	}
	if exp.Category == "" {
		exp.Category = CategoryOther
	}
	if !exp.Category.Valid() {
		return nil, ErrInvalidCategory
	}
	if exp.Currency == "" {
		exp.Currency = "USD"
	}
	if err := s.checkScope(ctx, exp.OrganizationID, exp.DepartmentID, exp.TeamID, exp.AccountID); err != nil {
		return nil, err
	}
	now := s.store.Now()
	if exp.ExpenseDate.IsZero() {
		exp.ExpenseDate = now
	}
	exp.ExpenseDate = exp.ExpenseDate.UTC()
	exp.ID = store.NewID()
	exp.Status = ExpensePending
	exp.CreatedAt = now
	exp.ApprovedBy, exp.ApprovedDate, exp.PaidDate, exp.RejectionReason = "", nil, nil, ""
	exp.PaymentMethod, exp.PaymentReference = "", ""

	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		exp.ID, exp.OrganizationID, exp.MemberID, store.NullString(exp.DepartmentID), store.NullString(exp.TeamID),
		store.NullString(exp.AccountID), exp.Title, exp.Description, exp.Category, exp.Amount, exp.Currency,
		exp.ExpenseDate, exp.Status, nil, nil, "", nil, "", "", exp.ReceiptURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}
	return &exp, nil
}

// GetExpense loads one expense.
func (s *Service) GetExpense(ctx context.Context, id string) (*Expense, error) {
	e, err := scanExpense(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "expense")
	}
	return e, nil
}

// ExpenseFilter narrows ListExpenses. Empty fields match everything.
type ExpenseFilter struct {
	MemberID string
	Status   ExpenseStatus
}

// ListExpenses returns an organization's expenses, newest first.
func (s *Service) ListExpenses(ctx context.Context, orgID string, f ExpenseFilter) ([]Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE organization_id = $1`
	args := []any{orgID}
	if f.MemberID != "" {
		args = append(args, f.MemberID)
		query += fmt.Sprintf(" AND member_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, query+" ORDER BY expense_date DESC, created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ApproveExpense moves a PENDING expense to APPROVED.
func (s *Service) ApproveExpense(ctx context.Context, id, approverID string) (*Expense, error) {
	now := s.store.Now()
	return s.transition(ctx, id, ExpensePending, ExpenseApproved,
		`approved_by = $1, approved_at = $2`, store.NullString(approverID), now)
}

// RejectExpense moves a PENDING expense to REJECTED. A reason is required.
func (s *Service) RejectExpense(ctx context.Context, id, approverID, reason string) (*Expense, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRejectionReason
	}
	now := s.store.Now()
	return s.transition(ctx, id, ExpensePending, ExpenseRejected,
		`approved_by = $1, approved_at = $2, rejection_reason = $3`, store.NullString(approverID), now, reason)
}

// transition updates the expense when it is in from. set holds extra
// assignments whose placeholders start at $1.
func (s *Service) transition(ctx context.Context, id string, from, to ExpenseStatus, set string, args ...any) (*Expense, error) {
	n := len(args)
	query := fmt.Sprintf(`UPDATE expenses SET %s, status = $%d, updated_at = $%d WHERE id = $%d AND status = $%d`,
		set, n+1, n+2, n+3, n+4)
	args = append(args, to, s.store.Now(), id, from)

	var out *Expense
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		exp, err := s.GetExpense(ctx, id)
		if err != nil {
			return err
		}
		if exp.Status != from {
			return fmt.Errorf("%w: expense is %s", ErrInvalidTransition, exp.Status)
		}
		if _, err := s.store.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		out, err = s.GetExpense(ctx, id)
		return err
	})
	return out, err
}

// PayRequest describes how an approved expense was paid.
type PayRequest struct {
	Method      PaymentMethod
	Reference   string
	ProcessedBy string
	PaidAt      time.Time
}

// PayExpense moves an APPROVED expense to PAID, records the payment and
// charges the matching active budget.
func (s *Service) PayExpense(ctx context.Context, id string, req PayRequest) (*Expense, *Payment, error) {
	if !req.Method.Valid() {
		return nil, nil, ErrInvalidPaymentMethod
	}
	if req.PaidAt.IsZero() {
		req.PaidAt = s.store.Now()
	}

	var exp *Expense
	var payment *Payment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		exp, err = s.transition(ctx, id, ExpenseApproved, ExpensePaid,
			`paid_at = $1, payment_method = $2, payment_reference = $3`, req.PaidAt, req.Method, req.Reference)
		if err != nil {
			return err
		}
		payment, err = s.insertPayment(ctx, Payment{
			OrganizationID: exp.OrganizationID,
			ExpenseID:      exp.ID,
			Amount:         exp.Amount,
			Method:         req.Method,
			PaymentDate:    req.PaidAt,
			Reference:      req.Reference,
			ProcessedBy:    req.ProcessedBy,
		})
		if err != nil {
			return err
		}
		return s.chargeBudget(ctx, exp)
	})
	if err != nil {
		return nil, nil, err
	}
	return exp, payment, nil
}
