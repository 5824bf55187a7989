package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// Service is the accounting data layer. All operations are scoped to one
// organization by the caller.
type Service struct {
	store *store.Store
}

// NewService creates a service over st.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// DefaultChart is the starter chart of accounts given to every organization.
var DefaultChart = []Account{
	{Code: "1000", Name: "Cash", Type: Asset},
	{Code: "1100", Name: "Accounts Receivable", Type: Asset},
	{Code: "2000", Name: "Accounts Payable", Type: Liability},
	{Code: "3000", Name: "Owner's Equity", Type: Equity},
	{Code: "4000", Name: "Sales Revenue", Type: Revenue},
	{Code: "5000", Name: "Operating Expenses", Type: Expense},
	{Code: "5100", Name: "Travel Expenses", Type: Expense},
	{Code: "5200", Name: "Software Expenses", Type: Expense},
}

const accountColumns = `id, organization_id, code, name, account_type, description, parent_id, balance, is_active, created_at`

func scanAccount(row store.Scanner) (*Account, error) {
	var a Account
	var parent sql.NullString
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.Code, &a.Name, &a.Type, &a.Description,
		&parent, &a.Balance, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ParentID = parent.String
	return &a, nil
}

// CreateAccount inserts acct with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, acct Account) (*Account, error) {
	acct.Code = strings.TrimSpace(acct.Code)
	acct.Name = strings.TrimSpace(acct.Name)
	if !acct.Type.Valid() {
		return nil, ErrInvalidAccountType
	}
	now := s.store.Now()
	acct.ID = store.NewID()
	acct.Balance = 0
	acct.IsActive = true
	acct.CreatedAt = now
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO ledger_accounts (`+accountColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acct.ID, acct.OrganizationID, acct.Code, acct.Name, acct.Type, acct.Description,
		store.NullString(acct.ParentID), acct.Balance, acct.IsActive, now, now)
	if store.IsUniqueViolation(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return &acct, nil
}

// GetAccount loads one account by id.
func (s *Service) GetAccount(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "account")
	}
	return a, nil
}

// AccountByCode loads an organization's account by code.
func (s *Service) AccountByCode(ctx context.Context, orgID, code string) (*Account, error) {
	a, err := scanAccount(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE organization_id = $1 AND code = $2`, orgID, code))
	if err != nil {
		return nil, store.NotFound(err, "account")
	}
	return a, nil
}

// ListAccounts returns an organization's accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, orgID string) ([]Account, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM ledger_accounts WHERE organization_id = $1 ORDER BY code`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// EnsureDefaultChart creates any DefaultChart accounts the organization is
// missing and returns how many were added.
func (s *Service) EnsureDefaultChart(ctx context.Context, orgID string) (int, error) {
	added := 0
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		for _, tmpl := range DefaultChart {
			_, err := s.AccountByCode(ctx, orgID, tmpl.Code)
			if err == nil {
				continue
			}
			if !isNotFound(err) {
				return err
			}
			tmpl.OrganizationID = orgID
			if _, err := s.CreateAccount(ctx, tmpl); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	return added, err
}

// applyToAccount moves an account balance by a posted line.
func (s *Service) applyToAccount(ctx context.Context, orgID string, line JournalLine) error {
	acct, err := s.GetAccount(ctx, line.AccountID)
	if err != nil {
		return err
	}
	if acct.OrganizationID != orgID {
		return ErrForeignOrganization
	}
	delta := line.Credit - line.Debit
	if acct.Type.DebitNormal() {
		delta = -delta
	}
	_, err = s.store.Q(ctx).ExecContext(ctx,
		`UPDATE ledger_accounts SET balance = balance + $1, updated_at = $2 WHERE id = $3`,
		delta, s.store.Now(), acct.ID)
	if err != nil {
		return fmt.Errorf("failed to update account balance: %w", err)
	}
	return nil
}

// TrialBalanceRow totals one account type.
type TrialBalanceRow struct {
	Type     AccountType `json:"account_type"`
	Accounts int         `json:"accounts"`
	Debit    int64       `json:"debit"`
	Credit   int64       `json:"credit"`
}

// LedgerSummary is the trial balance of an organization.
type LedgerSummary struct {
	Rows         []TrialBalanceRow `json:"rows"`
	TotalDebits  int64             `json:"total_debits"`
	TotalCredits int64             `json:"total_credits"`
	Balanced     bool              `json:"balanced"`
}

// TrialBalance places every account balance on its normal side, or the
// opposite side when negative, and totals the columns by account type.
func (s *Service) TrialBalance(ctx context.Context, orgID string) (*LedgerSummary, error) {
	accounts, err := s.ListAccounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	byType := make(map[AccountType]*TrialBalanceRow, len(AccountTypes))
	summary := &LedgerSummary{Rows: make([]TrialBalanceRow, 0, len(AccountTypes))}
	for _, t := range AccountTypes {
		summary.Rows = append(summary.Rows, TrialBalanceRow{Type: t})
	}
	for i := range summary.Rows {
		byType[summary.Rows[i].Type] = &summary.Rows[i]
	}

	for _, a := range accounts {
		row := byType[a.Type]
		if row == nil {
			continue
		}
		row.Accounts++
		debitSide := a.Type.DebitNormal() == (a.Balance >= 0)
		amount := a.Balance
		if amount < 0 {
			amount = -amount
		}
		if debitSide {
			row.Debit += amount
			summary.TotalDebits += amount
		} else {
			row.Credit += amount
			summary.TotalCredits += amount
		}
	}
	summary.Balanced = summary.TotalDebits == summary.TotalCredits
	return summary, nil
}
