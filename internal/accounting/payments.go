package accounting

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const paymentColumns = `id, organization_id, invoice_id, expense_id, amount, payment_method, payment_date,
	reference_number, notes, processed_by, created_at`

func scanPayment(row store.Scanner) (*Payment, error) {
	var p Payment
	var invoice, expense, processedBy sql.NullString
	if err := row.Scan(&p.ID, &p.OrganizationID, &invoice, &expense, &p.Amount, &p.Method, &p.PaymentDate,
		&p.Reference, &p.Notes, &processedBy, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.InvoiceID, p.ExpenseID, p.ProcessedBy = invoice.String, expense.String, processedBy.String
	return &p, nil
}

func (s *Service) insertPayment(ctx context.Context, p Payment) (*Payment, error) {
	now := s.store.Now()
	if p.PaymentDate.IsZero() {
		p.PaymentDate = now
	}
	p.ID = store.NewID()
	p.CreatedAt = now
	_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.OrganizationID, store.NullString(p.InvoiceID), store.NullString(p.ExpenseID), p.Amount, p.Method,
		p.PaymentDate, p.Reference, p.Notes, store.NullString(p.ProcessedBy), p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	return &p, nil
}

// RecordPayment stores p. A payment against an invoice that brings its paid
// total up to the invoice total marks the invoice PAID.
func (s *Service) RecordPayment(ctx context.Context, p Payment) (*Payment, error) {
	if p.Amount < 1 {
		return nil, ErrInvalidAmount
	}
	if !p.Method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if p.InvoiceID != "" && p.ExpenseID != "" {
		return nil, ErrPaymentTargetConflict
	}

	var out *Payment
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var inv *Invoice
		if p.InvoiceID != "" {
			var err error
			if inv, err = s.GetInvoice(ctx, p.InvoiceID); err != nil {
				return err
			}
			if inv.OrganizationID != p.OrganizationID {
				return ErrForeignOrganization
			}
		}
		if p.ExpenseID != "" {
			exp, err := s.GetExpense(ctx, p.ExpenseID)
			if err != nil {
				return err
			}
			if exp.OrganizationID != p.OrganizationID {
				return ErrForeignOrganization
			}
		}

		var err error
		if out, err = s.insertPayment(ctx, p); err != nil {
			return err
		}
		if inv == nil || inv.Status == InvoicePaid || inv.Status == InvoiceCancelled {
			return nil
		}
		paid, err := s.InvoicePaidTotal(ctx, inv.ID)
		if err != nil {
			return err
		}
		if paid >= inv.TotalAmount {
			return s.setInvoicePaid(ctx, inv.ID, out.PaymentDate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InvoicePaidTotal sums the payments recorded against an invoice.
func (s *Service) InvoicePaidTotal(ctx context.Context, invoiceID string) (int64, error) {
	var total int64
	err := s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return total, nil
}

// ListPayments returns an organization's payments, newest first.
func (s *Service) ListPayments(ctx context.Context, orgID string) ([]Payment, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE organization_id = $1 ORDER BY payment_date DESC, created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
