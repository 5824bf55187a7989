package accounting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hadibuxm/jadeed/internal/platform/httpx"
)

// checkScope verifies that the department, team and ledger account a record
// points at belong to orgID. Empty IDs are skipped.
func (s *Service) checkScope(ctx context.Context, orgID, departmentID, teamID, accountID string) error {
	verr := httpx.NewValidationError()
	checks := []struct {
		field, id, msg, query string
	}{
		{"department", departmentID, "Department not found.",
			`SELECT organization_id FROM departments WHERE id = $1`},
		{"team", teamID, "Team not found.",
			`SELECT d.organization_id FROM teams t JOIN departments d ON d.id = t.department_id WHERE t.id = $1`},
		{"account", accountID, "Account not found.",
			`SELECT organization_id FROM ledger_accounts WHERE id = $1`},
	}
	for _, c := range checks {
		if c.id == "" {
			continue
		}
		var owner string
		err := s.store.Q(ctx).QueryRowContext(ctx, c.query, c.id).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != orgID) {
			verr.Add(c.field, c.msg)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", c.field, err)
		}
	}
	return verr.Err()
}
