package accounting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hadibuxm/jadeed/internal/platform/store"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

const entryColumns = `id, organization_id, entry_number, entry_type, entry_date, description,
	invoice_id, expense_id, created_by, created_at`

func scanEntry(row store.Scanner) (*JournalEntry, error) {
	var e JournalEntry
	var invoice, expense, createdBy sql.NullString
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.Number, &e.Type, &e.Date, &e.Description,
		&invoice, &expense, &createdBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.InvoiceID, e.ExpenseID, e.CreatedBy = invoice.String, expense.String, createdBy.String
	return &e, nil
}

// ValidateEntry checks the lines of e without touching the database.
func ValidateEntry(e *JournalEntry) error {
	if len(e.Lines) == 0 {
		return ErrEmptyEntry
	}
	for _, l := range e.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	if !e.IsBalanced() {
		return ErrUnbalancedEntry
	}
	return nil
}

const (
	entryNumberPrefix = "JE-"
	// entryNumberAttempts bounds retries when a concurrent post takes the
	// generated number first.
	entryNumberAttempts = 3
)

// nextEntryNumber returns the number after the highest JE-00001 style
// number of an organization. Manually numbered entries that do not follow
// the pattern are ignored.
func (s *Service) nextEntryNumber(ctx context.Context, orgID string) (string, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT entry_number FROM journal_entries
		WHERE organization_id = $1 AND entry_number LIKE $2`, orgID, entryNumberPrefix+"%")
	if err != nil {
		return "", fmt.Errorf("failed to read journal entry numbers: %w", err)
	}
	defer rows.Close()
	highest := 0
	for rows.Next() {
		var num string
		if err := rows.Scan(&num); err != nil {
			return "", fmt.Errorf("failed to read journal entry numbers: %w", err)
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(num, entryNumberPrefix)); err == nil && n > highest {
			highest = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read journal entry numbers: %w", err)
	}
	return fmt.Sprintf("%s%05d", entryNumberPrefix, highest+1), nil
}

// PostEntry validates and stores e, then applies each line to its account
// balance. Everything happens in one transaction.
func (s *Service) PostEntry(ctx context.Context, e JournalEntry) (*JournalEntry, error) {
	if e.Type == "" {
		e.Type = EntryStandard
	}
	if !e.Type.Valid() {
		return nil, ErrInvalidEntryType
	}
	if err := ValidateEntry(&e); err != nil {
		return nil, err
	}
	e.Description = strings.TrimSpace(e.Description)
	for _, l := range e.Lines {
		if err := s.checkScope(ctx, e.OrganizationID, l.DepartmentID, l.TeamID, ""); err != nil {
			return nil, err
		}
	}

	generated := e.Number == ""
	for attempt := 1; ; attempt++ {
		posted, err := s.postEntry(ctx, e, generated)
		if generated && errors.Is(err, ErrEntryNumberExists) && attempt < entryNumberAttempts {
			continue
		}
		return posted, err
	}
}

func (s *Service) postEntry(ctx context.Context, e JournalEntry, generated bool) (*JournalEntry, error) {
	e.Lines = append([]JournalLine(nil), e.Lines...)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.store.Now()
		if generated {
			num, err := s.nextEntryNumber(ctx, e.OrganizationID)
			if err != nil {
				return err
			}
			e.Number = num
		}
		if e.Date.IsZero() {
			e.Date = now
		}
		e.ID = store.NewID()
		e.CreatedAt = now
		_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.OrganizationID, e.Number, e.Type, e.Date, e.Description,
			store.NullString(e.InvoiceID), store.NullString(e.ExpenseID), store.NullString(e.CreatedBy), e.CreatedAt)
		if store.IsUniqueViolation(err) {
			return ErrEntryNumberExists
		}
		if err != nil {
			return fmt.Errorf("failed to create journal entry: %w", err)
		}

		for i := range e.Lines {
			line := &e.Lines[i]
			line.ID = store.NewID()
			if line.Order == 0 {
				line.Order = i + 1
			}
			_, err := s.store.Q(ctx).ExecContext(ctx, `INSERT INTO journal_entry_lines
				(id, journal_entry_id, account_id, description, debit, credit, department_id, team_id, line_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				line.ID, e.ID, line.AccountID, line.Description, line.Debit, line.Credit,
				store.NullString(line.DepartmentID), store.NullString(line.TeamID), line.Order)
			if err != nil {
				return fmt.Errorf("failed to create journal line: %w", err)
			}
			if err := s.applyToAccount(ctx, e.OrganizationID, *line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEntry loads one journal entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id string) (*JournalEntry, error) {
	e, err := scanEntry(s.store.Q(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = $1`, id))
	if err != nil {
		return nil, store.NotFound(err, "journal entry")
	}
	if e.Lines, err = s.entryLines(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) entryLines(ctx context.Context, entryID string) ([]JournalLine, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT id, account_id, description, debit, credit, department_id, team_id, line_order
		FROM journal_entry_lines WHERE journal_entry_id = $1 ORDER BY line_order`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal lines: %w", err)
	}
	defer rows.Close()

	lines := []JournalLine{}
	for rows.Next() {
		var l JournalLine
		var dept, team sql.NullString
		if err := rows.Scan(&l.ID, &l.AccountID, &l.Description, &l.Debit, &l.Credit, &dept, &team, &l.Order); err != nil {
			return nil, err
		}
		l.DepartmentID, l.TeamID = dept.String, team.String
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListEntries returns an organization's journal entries, newest first, with
// their lines.
func (s *Service) ListEntries(ctx context.Context, orgID string) ([]JournalEntry, error) {
	rows, err := s.store.Q(ctx).QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries
		WHERE organization_id = $1 ORDER BY entry_date DESC, entry_number DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	var out []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Lines are loaded after the cursor is closed; the test pool has a
	// single connection.
	for i := range out {
		if out[i].Lines, err = s.entryLines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
