package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

type fixture struct {
	st   *store.Store
	svc  *Service
	orgs *organizations.Service
	org  *organizations.Organization
	dept *organizations.Department
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := storetest.New(t)
	orgs := organizations.NewService(st)

	org, err := orgs.CreateOrganization(ctx, organizations.Organization{Name: "Ledger Co"})
	require.NoError(t, err)
	_, err = orgs.CreateDefaultRoles(ctx, org.ID)
	require.NoError(t, err)
	dept, err := orgs.CreateDepartment(ctx, organizations.Department{OrganizationID: org.ID, Name: "Engineering"})
	require.NoError(t, err)

	svc := NewService(st)
	_, err = svc.EnsureDefaultChart(ctx, org.ID)
	require.NoError(t, err)
	return &fixture{st: st, svc: svc, orgs: orgs, org: org, dept: dept}
}

// member adds a user holding role to the fixture organization.
func (f *fixture) member(t *testing.T, username string, role organizations.RoleType) *organizations.Member {
	t.Helper()
	ctx := context.Background()
	r, err := f.orgs.RoleByType(ctx, f.org.ID, role)
	require.NoError(t, err)
	m, err := f.orgs.AddMember(ctx, organizations.Member{
		UserID:         storetest.CreateUser(t, f.st, username),
		OrganizationID: f.org.ID,
		DepartmentID:   f.dept.ID,
		RoleID:         r.ID,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) account(t *testing.T, code string) *Account {
	t.Helper()
	a, err := f.svc.AccountByCode(context.Background(), f.org.ID, code)
	require.NoError(t, err)
	return a
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLineAmountAndInvoiceTotals(t *testing.T) {
	assert.Equal(t, int64(1500), LineAmount(150, 1000))
	assert.Equal(t, int64(498), LineAmount(250, 199))
	assert.Equal(t, int64(1), LineAmount(1, 50))

	inv := Invoice{
		TaxAmount:      300,
		DiscountAmount: 100,
		Lines:          []InvoiceLine{{Quantity: 100, UnitPrice: 2500}, {Quantity: 250, UnitPrice: 199}},
	}
	inv.Recalculate()
	assert.Equal(t, int64(2500), inv.Lines[0].Amount)
	assert.Equal(t, int64(2998), inv.Subtotal)
	assert.Equal(t, int64(3198), inv.TotalAmount)
	assert.Equal(t, inv.TotalAmount, inv.CalculateTotal())
}

func TestBudgetFigures(t *testing.T) {
	b := Budget{TotalBudget: 10000, SpentAmount: 2500}
	assert.Equal(t, int64(7500), b.Remaining())
	assert.InDelta(t, 25.0, b.Utilization(), 0.0001)

	empty := Budget{SpentAmount: 10}
	assert.Zero(t, empty.Utilization())
	assert.Equal(t, int64(-10), empty.Remaining())
}

func TestJournalLineValidate(t *testing.T) {
	tests := []struct {
		name  string
		line  JournalLine
		valid bool
	}{
		{"debit only", JournalLine{Debit: 100}, true},
		{"credit only", JournalLine{Credit: 100}, true},
		{"both sides", JournalLine{Debit: 100, Credit: 100}, false},
		{"neither side", JournalLine{}, false},
		{"negative", JournalLine{Debit: -5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.line.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidLine)
			}
		})
	}
}

func TestEnsureDefaultChart_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	added, err := f.svc.EnsureDefaultChart(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Zero(t, added)

	accounts, err := f.svc.ListAccounts(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, accounts, len(DefaultChart))
	assert.Equal(t, "1000", accounts[0].Code)
	assert.Equal(t, "Cash", accounts[0].Name)
	assert.Equal(t, Expense, accounts[len(accounts)-1].Type)

	_, err = f.svc.CreateAccount(ctx, Account{OrganizationID: f.org.ID, Code: "1000", Name: "Petty Cash", Type: Asset})
	assert.ErrorIs(t, err, ErrAccountExists)
	_, err = f.svc.CreateAccount(ctx, Account{OrganizationID: f.org.ID, Code: "9000", Name: "Odd", Type: "MYSTERY"})
	assert.ErrorIs(t, err, ErrInvalidAccountType)
}

func TestPostEntry_AppliesBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash, equity, travel := f.account(t, "1000"), f.account(t, "3000"), f.account(t, "5100")

	first, err := f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Description:    "Owner investment",
		Lines: []JournalLine{
			{AccountID: cash.ID, Debit: 10000},
			{AccountID: equity.ID, Credit: 10000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "JE-00001", first.Number)
	assert.Equal(t, EntryStandard, first.Type)

	second, err := f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Description:    "Conference travel",
		Lines: []JournalLine{
			{AccountID: travel.ID, Debit: 2500},
			{AccountID: cash.ID, Credit: 2500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "JE-00002", second.Number)

	assert.Equal(t, int64(7500), f.account(t, "1000").Balance)
	assert.Equal(t, int64(10000), f.account(t, "3000").Balance)
	assert.Equal(t, int64(2500), f.account(t, "5100").Balance)

	summary, err := f.svc.TrialBalance(ctx, f.org.ID)
	require.NoError(t, err)
	assert.True(t, summary.Balanced)
	assert.Equal(t, int64(10000), summary.TotalDebits)
	assert.Equal(t, int64(10000), summary.TotalCredits)
	require.Len(t, summary.Rows, 5)
	assert.Equal(t, Asset, summary.Rows[0].Type)
	assert.Equal(t, int64(7500), summary.Rows[0].Debit)

	entries, err := f.svc.ListEntries(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Lines, 2)
}

func TestPostEntry_NumbersFollowTheHighest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash, equity := f.account(t, "1000"), f.account(t, "3000")
	post := func(number string) *JournalEntry {
		t.Helper()
		e, err := f.svc.PostEntry(ctx, JournalEntry{
			OrganizationID: f.org.ID,
			Number:         number,
			Description:    "Investment",
			Lines:          []JournalLine{{AccountID: cash.ID, Debit: 100}, {AccountID: equity.ID, Credit: 100}},
		})
		require.NoError(t, err)
		return e
	}

	assert.Equal(t, "JE-00001", post("").Number)
	post("JE-00007")
	post("ADJ-2025")
	assert.Equal(t, "JE-00008", post("").Number)
	assert.Equal(t, "JE-00009", post("").Number)

	_, err := f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Number:         "JE-00009",
		Description:    "Duplicate",
		Lines:          []JournalLine{{AccountID: cash.ID, Debit: 100}, {AccountID: equity.ID, Credit: 100}},
	})
	assert.ErrorIs(t, err, ErrEntryNumberExists)
	assert.Equal(t, int64(500), f.account(t, "1000").Balance)
}

func TestPostEntry_LinesStayInTheOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.orgs.CreateOrganization(ctx, organizations.Organization{Name: "Elsewhere"})
	require.NoError(t, err)
	theirDept, err := f.orgs.CreateDepartment(ctx, organizations.Department{OrganizationID: other.ID, Name: "Sales"})
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Description:    "Misfiled",
		Lines: []JournalLine{
			{AccountID: f.account(t, "1000").ID, Debit: 100, DepartmentID: theirDept.ID},
			{AccountID: f.account(t, "3000").ID, Credit: 100},
		},
	})
	var verr *httpx.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Department not found."}, verr.Fields["department"])
	assert.Zero(t, f.account(t, "1000").Balance)
}

func TestPostEntry_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash, revenue := f.account(t, "1000"), f.account(t, "4000")

	_, err := f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Description:    "Lopsided",
		Lines:          []JournalLine{{AccountID: cash.ID, Debit: 500}, {AccountID: revenue.ID, Credit: 400}},
	})
	assert.ErrorIs(t, err, ErrUnbalancedEntry)
	assert.Zero(t, f.account(t, "1000").Balance)

	_, err = f.svc.PostEntry(ctx, JournalEntry{OrganizationID: f.org.ID, Description: "Empty"})
	assert.ErrorIs(t, err, ErrEmptyEntry)

	_, err = f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Type:           "WEIRD",
		Lines:          []JournalLine{{AccountID: cash.ID, Debit: 1}, {AccountID: revenue.ID, Credit: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidEntryType)

	other, err := f.orgs.CreateOrganization(ctx, organizations.Organization{Name: "Elsewhere"})
	require.NoError(t, err)
	_, err = f.svc.EnsureDefaultChart(ctx, other.ID)
	require.NoError(t, err)
	theirCash, err := f.svc.AccountByCode(ctx, other.ID, "1000")
	require.NoError(t, err)

	_, err = f.svc.PostEntry(ctx, JournalEntry{
		OrganizationID: f.org.ID,
		Description:    "Cross-org",
		Lines:          []JournalLine{{AccountID: theirCash.ID, Debit: 100}, {AccountID: revenue.ID, Credit: 100}},
	})
	assert.ErrorIs(t, err, ErrForeignOrganization)
	assert.Zero(t, f.account(t, "4000").Balance)

	entries, err := f.svc.ListEntries(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExpenseWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	employee := f.member(t, "employee", organizations.RoleEmployee)

	engineering, err := f.svc.CreateBudget(ctx, Budget{
		OrganizationID: f.org.ID, DepartmentID: f.dept.ID, Name: "Engineering 2025",
		Period: PeriodAnnual, StartDate: day("2025-01-01"), EndDate: day("2025-12-31"), TotalBudget: 500000,
	})
	require.NoError(t, err)
	lastYear, err := f.svc.CreateBudget(ctx, Budget{
		OrganizationID: f.org.ID, DepartmentID: f.dept.ID, Name: "Engineering 2024",
		Period: PeriodAnnual, StartDate: day("2024-01-01"), EndDate: day("2024-12-31"), TotalBudget: 500000,
	})
	require.NoError(t, err)

	exp, err := f.svc.CreateExpense(ctx, Expense{
		OrganizationID: f.org.ID,
		MemberID:       employee.ID,
		DepartmentID:   f.dept.ID,
		Title:          "Flight to Berlin",
		Category:       CategoryTravel,
		Amount:         42000,
		ExpenseDate:    day("2025-06-15").Add(14 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, ExpensePending, exp.Status)
	assert.Equal(t, "USD", exp.Currency)

	_, _, err = f.svc.PayExpense(ctx, exp.ID, PayRequest{Method: PaymentBankTransfer})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.RejectExpense(ctx, exp.ID, employee.UserID, "  ")
	assert.ErrorIs(t, err, ErrRejectionReason)

	approved, err := f.svc.ApproveExpense(ctx, exp.ID, employee.UserID)
	require.NoError(t, err)
	assert.Equal(t, ExpenseApproved, approved.Status)
	assert.NotNil(t, approved.ApprovedDate)

	_, err = f.svc.RejectExpense(ctx, exp.ID, employee.UserID, "too late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	paid, payment, err := f.svc.PayExpense(ctx, exp.ID, PayRequest{Method: PaymentBankTransfer, Reference: "TX-1"})
	require.NoError(t, err)
	assert.Equal(t, ExpensePaid, paid.Status)
	assert.Equal(t, PaymentBankTransfer, paid.PaymentMethod)
	assert.Equal(t, "TX-1", paid.PaymentReference)
	assert.NotNil(t, paid.PaidDate)
	assert.Equal(t, exp.ID, payment.ExpenseID)
	assert.Equal(t, int64(42000), payment.Amount)

	charged, err := f.svc.GetBudget(ctx, engineering.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42000), charged.SpentAmount)
	untouched, err := f.svc.GetBudget(ctx, lastYear.ID)
	require.NoError(t, err)
	assert.Zero(t, untouched.SpentAmount)
}

func TestExpenseRejectionAndListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.member(t, "alice", organizations.RoleEmployee)
	bob := f.member(t, "bob", organizations.RoleEmployee)

	_, err := f.svc.CreateExpense(ctx, Expense{OrganizationID: f.org.ID, MemberID: alice.ID, Title: "Lunch", Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.CreateExpense(ctx, Expense{OrganizationID: f.org.ID, MemberID: alice.ID, Title: "Lunch", Amount: 10, Category: "FOOD"})
	assert.ErrorIs(t, err, ErrInvalidCategory)

	lunch, err := f.svc.CreateExpense(ctx, Expense{OrganizationID: f.org.ID, MemberID: alice.ID, Title: "Lunch", Amount: 1500, Category: CategoryMeals})
	require.NoError(t, err)
	_, err = f.svc.CreateExpense(ctx, Expense{OrganizationID: f.org.ID, MemberID: bob.ID, Title: "Keyboard", Amount: 9900, Category: CategoryEquipment})
	require.NoError(t, err)

	rejected, err := f.svc.RejectExpense(ctx, lunch.ID, bob.UserID, "Personal meal")
	require.NoError(t, err)
	assert.Equal(t, ExpenseRejected, rejected.Status)
	assert.Equal(t, "Personal meal", rejected.RejectionReason)

	all, err := f.svc.ListExpenses(ctx, f.org.ID, ExpenseFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	mine, err := f.svc.ListExpenses(ctx, f.org.ID, ExpenseFilter{MemberID: alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Lunch", mine[0].Title)
	pending, err := f.svc.ListExpenses(ctx, f.org.ID, ExpenseFilter{Status: ExpensePending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Keyboard", pending[0].Title)
}

func TestInvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateInvoice(ctx, Invoice{
		OrganizationID: f.org.ID,
		ClientName:     "Globex",
		IssueDate:      day("2025-03-01"),
		DueDate:        day("2025-03-31"),
		TaxAmount:      300,
		DiscountAmount: 100,
		Lines: []InvoiceLine{
			{Description: "Consulting", Quantity: 100, UnitPrice: 2500},
			{Description: "Widgets", Quantity: 250, UnitPrice: 199},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceDraft, inv.Status)
	assert.Equal(t, InvoiceCustomer, inv.Type)
	assert.Equal(t, int64(3198), inv.TotalAmount)
	assert.Regexp(t, `^INV-20250301-[0-9A-F]{8}$`, inv.Number)

	loaded, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 2)
	assert.Equal(t, int64(498), loaded.Lines[1].Amount)

	_, err = f.svc.CreateInvoice(ctx, Invoice{OrganizationID: f.org.ID, Number: inv.Number, ClientName: "Dup"})
	assert.ErrorIs(t, err, ErrInvoiceNumberExists)
	_, err = f.svc.CreateInvoice(ctx, Invoice{OrganizationID: f.org.ID, ClientName: "Bad", Lines: []InvoiceLine{{Quantity: 0, UnitPrice: 1}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.svc.MarkInvoicePaid(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	sent, err := f.svc.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceSent, sent.Status)

	f.st.SetClock(func() time.Time { return day("2025-04-15") })
	n, err := f.svc.MarkOverdue(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	paid, err := f.svc.MarkInvoicePaid(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidDate)

	_, err = f.svc.CancelInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordPayment_SettlesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateInvoice(ctx, Invoice{
		OrganizationID: f.org.ID,
		ClientName:     "Initech",
		Lines:          []InvoiceLine{{Description: "Support", Quantity: 100, UnitPrice: 3000}},
	})
	require.NoError(t, err)
	_, err = f.svc.SendInvoice(ctx, inv.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, Payment{OrganizationID: f.org.ID, InvoiceID: inv.ID, Amount: 1000, Method: PaymentCheck})
	require.NoError(t, err)
	partial, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceSent, partial.Status)

	_, err = f.svc.RecordPayment(ctx, Payment{OrganizationID: f.org.ID, InvoiceID: inv.ID, Amount: 2000, Method: PaymentStripe})
	require.NoError(t, err)
	settled, err := f.svc.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, settled.Status)
	assert.NotNil(t, settled.PaidDate)

	total, err := f.svc.InvoicePaidTotal(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), total)

	_, err = f.svc.RecordPayment(ctx, Payment{OrganizationID: f.org.ID, Amount: 0, Method: PaymentCash})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.svc.RecordPayment(ctx, Payment{OrganizationID: f.org.ID, Amount: 10, Method: "BARTER"})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	payments, err := f.svc.ListPayments(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}
