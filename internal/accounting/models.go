// Package accounting is the organization ledger: chart of accounts,
// expenses with their approval workflow, invoices, payments, journal entries
// and budgets. Money is held in integer cents.
package accounting

import (
	"errors"
	"time"
)

var (
	ErrServiceUnavailable    = errors.New("required service unavailable")
	ErrInvalidAmount         = errors.New("amount must be at least 0.01")
	ErrInvalidAccountType    = errors.New("invalid account type")
	ErrInvalidCategory       = errors.New("invalid expense category")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidInvoiceType    = errors.New("invalid invoice type")
	ErrInvalidEntryType      = errors.New("invalid journal entry type")
	ErrInvalidPeriod         = errors.New("invalid budget period")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrRejectionReason       = errors.New("a rejection reason is required")
	ErrUnbalancedEntry       = errors.New("journal entry debits and credits do not balance")
	ErrInvalidLine           = errors.New("each line needs exactly one of debit or credit")
	ErrEmptyEntry            = errors.New("journal entry has no lines")
	ErrAccountExists         = errors.New("an account with this code already exists")
	ErrInvoiceNumberExists   = errors.New("an invoice with this number already exists")
	ErrEntryNumberExists     = errors.New("a journal entry with this number already exists")
	ErrInvalidQuantity       = errors.New("quantity must be at least 0.01")
	ErrInvalidDateRange      = errors.New("end date must not be before start date")
	ErrForeignOrganization   = errors.New("record belongs to another organization")
	ErrPaymentTargetConflict = errors.New("a payment applies to an invoice or an expense, not both")
)

// AccountType classifies ledger accounts.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// AccountTypes lists every account type in statement order.
var AccountTypes = []AccountType{Asset, Liability, Equity, Revenue, Expense}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case Asset, Liability, Equity, Revenue, Expense:
		return true
	}
	return false
}

// DebitNormal reports whether debits increase accounts of type t.
func (t AccountType) DebitNormal() bool {
	return t == Asset || t == Expense
}

// Account is a ledger account.
type Account struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization"`
	Code           string      `json:"code"`
	Name           string      `json:"name"`
	Type           AccountType `json:"account_type"`
	Description    string      `json:"description"`
	ParentID       string      `json:"parent,omitempty"`
	Balance        int64       `json:"balance"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ExpenseCategory classifies expenses.
type ExpenseCategory string

const (
	CategoryTravel    ExpenseCategory = "TRAVEL"
	CategoryMeals     ExpenseCategory = "MEALS"
	CategoryOffice    ExpenseCategory = "OFFICE"
	CategoryEquipment ExpenseCategory = "EQUIPMENT"
	CategorySoftware  ExpenseCategory = "SOFTWARE"
	CategoryTraining  ExpenseCategory = "TRAINING"
	CategoryOther     ExpenseCategory = "OTHER"
)

// Valid reports whether c is a known category.
func (c ExpenseCategory) Valid() bool {
	switch c {
	case CategoryTravel, CategoryMeals, CategoryOffice, CategoryEquipment, CategorySoftware, CategoryTraining, CategoryOther:
		return true
	}
	return false
}

// ExpenseStatus is the approval state of an expense.
type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "PENDING"
	ExpenseApproved ExpenseStatus = "APPROVED"
	ExpenseRejected ExpenseStatus = "REJECTED"
	ExpensePaid     ExpenseStatus = "PAID"
)

// Expense is a reimbursable spend submitted by a member.
type Expense struct {
	ID               string          `json:"id"`
	OrganizationID   string          `json:"organization"`
	MemberID         string          `json:"submitted_by"`
	DepartmentID     string          `json:"department,omitempty"`
	TeamID           string          `json:"team,omitempty"`
	AccountID        string          `json:"account,omitempty"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Category         ExpenseCategory `json:"category"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	ExpenseDate      time.Time       `json:"expense_date"`
	Status           ExpenseStatus   `json:"status"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	ApprovedDate     *time.Time      `json:"approved_date,omitempty"`
	RejectionReason  string          `json:"rejection_reason"`
	PaidDate         *time.Time      `json:"paid_date,omitempty"`
	PaymentMethod    PaymentMethod   `json:"payment_method,omitempty"`
	PaymentReference string          `json:"payment_reference"`
	ReceiptURL       string          `json:"receipt_url"`
	CreatedAt        time.Time       `json:"created_at"`
}

// InvoiceType is the direction of an invoice.
type InvoiceType string

const (
	InvoiceCustomer InvoiceType = "CUSTOMER"
	InvoiceVendor   InvoiceType = "VENDOR"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "DRAFT"
	InvoiceSent      InvoiceStatus = "SENT"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is a bill to a customer or from a vendor.
type Invoice struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization"`
	Number         string        `json:"invoice_number"`
	Type           InvoiceType   `json:"invoice_type"`
	ClientName     string        `json:"client_name"`
	ClientEmail    string        `json:"client_email"`
	ClientAddress  string        `json:"client_address"`
	Subtotal       int64         `json:"subtotal"`
	TaxAmount      int64         `json:"tax_amount"`
	DiscountAmount int64         `json:"discount_amount"`
	TotalAmount    int64         `json:"total_amount"`
	Currency       string        `json:"currency"`
	IssueDate      time.Time     `json:"issue_date"`
	DueDate        time.Time     `json:"due_date"`
	PaidDate       *time.Time    `json:"paid_date,omitempty"`
	Status         InvoiceStatus `json:"status"`
	Notes          string        `json:"notes"`
	Terms          string        `json:"terms"`
	CreatedBy      string        `json:"created_by,omitempty"`
	Lines          []InvoiceLine `json:"line_items"`
	CreatedAt      time.Time     `json:"created_at"`
}

// CalculateTotal is subtotal plus tax minus discount.
func (inv *Invoice) CalculateTotal() int64 {
	return inv.Subtotal + inv.TaxAmount - inv.DiscountAmount
}

// Recalculate derives line amounts, the subtotal and the total.
func (inv *Invoice) Recalculate() {
	inv.Subtotal = 0
	for i := range inv.Lines {
		inv.Lines[i].Amount = LineAmount(inv.Lines[i].Quantity, inv.Lines[i].UnitPrice)
		inv.Subtotal += inv.Lines[i].Amount
	}
	inv.TotalAmount = inv.CalculateTotal()
}

// IsOverdue reports whether the invoice is unpaid past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return (inv.Status == InvoiceSent || inv.Status == InvoiceOverdue) && now.After(inv.DueDate)
}

// InvoiceLine is one line on an invoice. Quantity is in hundredths.
type InvoiceLine struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Amount      int64  `json:"amount"`
	AccountID   string `json:"account,omitempty"`
	Order       int    `json:"order"`
}

// LineAmount is quantity (hundredths) times unit price (cents), rounded
// half up to the cent.
func LineAmount(quantity, unitPrice int64) int64 {
	return (quantity*unitPrice + 50) / 100
}

// PaymentMethod is how money moved.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCheck        PaymentMethod = "CHECK"
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentPayPal       PaymentMethod = "PAYPAL"
	PaymentStripe       PaymentMethod = "STRIPE"
	PaymentOther        PaymentMethod = "OTHER"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCheck, PaymentCreditCard, PaymentBankTransfer, PaymentPayPal, PaymentStripe, PaymentOther:
		return true
	}
	return false
}

// Payment records money received or paid out.
type Payment struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization"`
	InvoiceID      string        `json:"invoice,omitempty"`
	ExpenseID      string        `json:"expense,omitempty"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `json:"payment_method"`
	PaymentDate    time.Time     `json:"payment_date"`
	Reference      string        `json:"reference_number"`
	Notes          string        `json:"notes"`
	ProcessedBy    string        `json:"processed_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// EntryType classifies journal entries.
type EntryType string

const (
	EntryStandard  EntryType = "STANDARD"
	EntryAdjusting EntryType = "ADJUSTING"
	EntryClosing   EntryType = "CLOSING"
	EntryReversing EntryType = "REVERSING"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryStandard, EntryAdjusting, EntryClosing, EntryReversing:
		return true
	}
	return false
}

// JournalEntry is a double-entry posting.
type JournalEntry struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization"`
	Number         string        `json:"entry_number"`
	Type           EntryType     `json:"entry_type"`
	Date           time.Time     `json:"entry_date"`
	Description    string        `json:"description"`
	InvoiceID      string        `json:"invoice,omitempty"`
	ExpenseID      string        `json:"expense,omitempty"`
	CreatedBy      string        `json:"created_by,omitempty"`
	Lines          []JournalLine `json:"lines"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Totals returns the summed debits and credits.
func (e *JournalEntry) Totals() (debits, credits int64) {
	for _, l := range e.Lines {
		debits += l.Debit
		credits += l.Credit
	}
	return debits, credits
}

// IsBalanced reports whether debits equal credits.
func (e *JournalEntry) IsBalanced() bool {
	d, c := e.Totals()
	return d == c
}

// JournalLine is one side of a journal entry.
type JournalLine struct {
	ID           string `json:"id"`
	AccountID    string `json:"account"`
	Description  string `json:"description"`
	Debit        int64  `json:"debit"`
	Credit       int64  `json:"credit"`
	DepartmentID string `json:"department,omitempty"`
	TeamID       string `json:"team,omitempty"`
	Order        int    `json:"order"`
}

// Validate checks that exactly one side is positive.
func (l JournalLine) Validate() error {
	if l.Debit < 0 || l.Credit < 0 || (l.Debit > 0) == (l.Credit > 0) {
		return ErrInvalidLine
	}
	return nil
}

// BudgetPeriod is the length of a budget.
type BudgetPeriod string

const (
	PeriodAnnual    BudgetPeriod = "ANNUAL"
	PeriodQuarterly BudgetPeriod = "QUARTERLY"
	PeriodMonthly   BudgetPeriod = "MONTHLY"
)

// Valid reports whether p is a known period.
func (p BudgetPeriod) Valid() bool {
	switch p {
	case PeriodAnnual, PeriodQuarterly, PeriodMonthly:
		return true
	}
	return false
}

// Budget caps spending for an organization, department or team.
type Budget struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization"`
	DepartmentID   string       `json:"department,omitempty"`
	TeamID         string       `json:"team,omitempty"`
	Name           string       `json:"name"`
	Period         BudgetPeriod `json:"period_type"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	TotalBudget    int64        `json:"total_budget"`
	SpentAmount    int64        `json:"spent_amount"`
	Notes          string       `json:"notes"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Remaining is the unspent part of the budget.
func (b *Budget) Remaining() int64 {
	return b.TotalBudget - b.SpentAmount
}

// Utilization is the spent share of the budget in percent.
func (b *Budget) Utilization() float64 {
	if b.TotalBudget <= 0 {
		return 0
	}
	return float64(b.SpentAmount) / float64(b.TotalBudget) * 100
}

// Covers reports whether day falls inside the budget period.
func (b *Budget) Covers(day time.Time) bool {
	return !day.Before(b.StartDate) && !day.After(b.EndDate)
}
