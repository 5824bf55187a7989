package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const invoiceColumns = `id, organization_id, invoice_number, invoice_type, client_name, client_email, client_address,
	subtotal, tax_amount, discount_amount, total_amount, currency, issue_date, due_date, paid_date,
	status, notes, terms, created_by, created_at`

func scanInvoice(row store.Scanner) (*Invoice, error) {
	var inv Invoice
	var paid sql.NullTime
	var createdBy sql.NullString
	if err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Number, &inv.Type, &inv.ClientName, &inv.ClientEmail,
		&inv.ClientAddress, &inv.Subtotal, &inv.TaxAmount, &inv.DiscountAmount, &inv.TotalAmount, &inv.Currency,
		&inv.IssueDate, &inv.DueDate, &paid, &inv.Status, &inv.Notes, &inv.Terms, &createdBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.PaidDate, inv.CreatedBy = store.TimePtr(paid), createdBy.String
	return &inv, nil
}

// NewInvoiceNumber returns a globally unique invoice number for issue.
func NewInvoiceNumber(issue time.Time) string {
	id := strings.ReplaceAll(store.NewID(), "-", "")
	return fmt.Sprintf("INV-%s-%s", issue.Format("20060102"), strings.ToUpper(id[:8]))
}

// CreateInvoice stores inv as a DRAFT. Line amounts, the subtotal and the
// total are derived from the lines.
func (s *Service) CreateInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	if inv.Type == "" {
		inv.Type = InvoiceCustomer
	}
	if inv.Type != InvoiceCustomer && inv.Type != InvoiceVendor {
		return nil, ErrInvalidInvoiceType
	}
	for _, l := range inv.Lines {
		if l.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		if l.UnitPrice < 0 {
			return nil, ErrInvalidAmount
		}
	}
	if inv.TaxAmount < 0 || inv.DiscountAmount < 0 {
		return nil, ErrInvalidAmount
	}
	now := s.store.Now()
	if inv.IssueDate.IsZero() {
		inv.IssueDate = now
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 0, 30)
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return nil, ErrInvalidDateRange
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	if inv.Number == "" {
		inv.Number = NewInvoiceNumber(inv.IssueDate)
	}
	inv.ClientName = strings.TrimSpace(inv.ClientName)
	inv.ID = store.NewID()
	inv.Status = InvoiceDraft
	inv.PaidDate = nil
	inv.CreatedAt = now
	if inv.Lines == nil {
		inv.Lines = []InvoiceLine{}
	}
	inv.Recalculate()

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO invoices (`+invoiceColumns+`, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			inv.ID, inv.OrganizationID, inv.Number, inv.Type, inv.ClientName, inv.ClientEmail, inv.ClientAddress,
			inv.Subtotal, inv.TaxAmount, inv.DiscountAmount, inv.TotalAmount, inv.Currency, inv.IssueDate, inv.DueDate,
			nil, inv.Status, inv.Notes, inv.Terms, store.NullString(inv.CreatedBy), now, now)
		if store.IsUniqueViolation(err) {
			return ErrInvoiceNumberExists
		}
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		for i := range inv.Lines {
			line := &inv.Lines[i]
			line.ID = store.NewID()
			if line.Order == 0 {
				line.Order = i + 1
			}
			_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO invoice_line_items
				(id, invoice_id, description, quantity, unit_price, amount, account_id, line_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				line.ID, inv.ID, line.Description, line.Quantity, line.UnitPrice, line.Amount,
				store.NullString(line.AccountID), line.Order)
			if err != nil {
				return fmt.Errorf("failed to create invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoice loads one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	inv, err := scanInvoice(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "invoice")
	}
	if inv.Lines, err = s.invoiceLines(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) invoiceLines(ctx context.Context, invoiceID string) ([]InvoiceLine, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT id, description, quantity, unit_price, amount, account_id, line_order
		FROM invoice_line_items WHERE invoice_id = $1 ORDER BY line_order`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}
	defer rows.Close()

	lines := []InvoiceLine{}
	for rows.Next() {
		var l InvoiceLine
		var account sql.NullString
		if err := rows.Scan(&l.ID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &account, &l.Order); err != nil {
			return nil, err
		}
		l.AccountID = account.String
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListInvoices returns an organization's invoices, newest first. Lines are
// not loaded.
func (s *Service) ListInvoices(ctx context.Context, orgID string, status InvoiceStatus) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE organization_id = $1`
	args := []any{orgID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	rows, err := s.store.Q(ctx).QueryContext(ctx, query+` ORDER BY issue_date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Service) setInvoiceStatus(ctx context.Context, id string, status InvoiceStatus, allowed ...InvoiceStatus) (*Invoice, error) {
	var out *Invoice
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		ok := false
		for _, a := range allowed {
			ok = ok || inv.Status == a
		}
		if !ok {
			return fmt.Errorf("%w: invoice is %s", ErrInvalidTransition, inv.Status)
		}
		if status == InvoicePaid {
			err = s.setInvoicePaid(ctx, id, s.store.Now())
		} else {
			_, err = s.store.Q(ctx).ExecContext(ctx,
				`UPDATE invoices SET status = $1, updated_at = $2 WHERE id = $3`, status, s.store.Now(), id)
		}
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		out, err = s.GetInvoice(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) setInvoicePaid(ctx context.Context, id string, paidAt time.Time) error {
	_, err := s.store.Q(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = $1, paid_date = $2, updated_at = $3 WHERE id = $4`,
		InvoicePaid, paidAt, s.store.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	return nil
}

// SendInvoice moves a DRAFT invoice to SENT.
func (s *Service) SendInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.setInvoiceStatus(ctx, id, InvoiceSent, InvoiceDraft)
}

// MarkInvoicePaid marks a SENT or OVERDUE invoice PAID.
func (s *Service) MarkInvoicePaid(ctx context.Context, id string) (*Invoice, error) {
	return s.setInvoiceStatus(ctx, id, InvoicePaid, InvoiceSent, InvoiceOverdue)
}

// CancelInvoice cancels an invoice that has not been paid.
func (s *Service) CancelInvoice(ctx context.Context, id string) (*Invoice, error) {
	return s.setInvoiceStatus(ctx, id, InvoiceCancelled, InvoiceDraft, InvoiceSent, InvoiceOverdue)
}

// MarkOverdue flags SENT invoices of an organization whose due date has
// passed and returns how many changed.
func (s *Service) MarkOverdue(ctx context.Context, orgID string) (int64, error) {
	now := s.store.Now()
	res, err := s.store.Q(ctx).ExecContext(ctx, `UPDATE invoices SET status = $1, updated_at = $2
		WHERE organization_id = $3 AND status = $4 AND due_date < $2`, InvoiceOverdue, now, orgID, InvoiceSent)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	return res.RowsAffected()
}
