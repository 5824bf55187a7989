package accounting

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/authctx"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

const dateLayout = "2006-01-02"

var errBadDate = errors.New("enter a valid date in YYYY-MM-DD format")

const msgBadDate = "Enter a valid date in YYYY-MM-DD format."

type handlers struct {
	svc    *Service
	orgs   *organizations.Service
	events *activity.Emitter
}

func (h *handlers) routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.orgs.RequireMember)

		r.Get("/api/accounting/expenses", h.listExpenses)
		r.Get("/api/accounting/expenses/{expenseID}", h.getExpense)
		r.Post("/api/accounting/expenses", h.createExpense)

		r.Group(func(r chi.Router) {
			r.Use(h.orgs.RequirePermission(organizations.PermApproveExpenses))
			r.Post("/api/accounting/expenses/{expenseID}/approve", h.approveExpense)
			r.Post("/api/accounting/expenses/{expenseID}/reject", h.rejectExpense)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.orgs.RequireAnyPermission(organizations.PermViewAllFinancial, organizations.PermViewReports))
			r.Get("/api/accounting/accounts", h.listAccounts)
			r.Get("/api/accounting/invoices", h.listInvoices)
			r.Get("/api/accounting/invoices/{invoiceID}", h.getInvoice)
			r.Get("/api/accounting/payments", h.listPayments)
			r.Get("/api/accounting/journal-entries", h.listEntries)
			r.Get("/api/accounting/budgets", h.listBudgets)
			r.Get("/api/accounting/summary", h.summary)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.orgs.RequirePermission(organizations.PermManageFinancial))
			r.Post("/api/accounting/accounts", h.createAccount)
			r.Post("/api/accounting/expenses/{expenseID}/pay", h.payExpense)
			r.Post("/api/accounting/invoices", h.createInvoice)
			r.Post("/api/accounting/invoices/{invoiceID}/send", h.invoiceAction(h.svc.SendInvoice))
			r.Post("/api/accounting/invoices/{invoiceID}/mark-paid", h.invoiceAction(h.svc.MarkInvoicePaid))
			r.Post("/api/accounting/invoices/{invoiceID}/cancel", h.invoiceAction(h.svc.CancelInvoice))
			r.Post("/api/accounting/payments", h.recordPayment)
			r.Post("/api/accounting/journal-entries", h.postEntry)
			r.Post("/api/accounting/budgets", h.createBudget)
		})
	})
}

// badRequest lists errors rendered as a 400 with their own message.
var badRequest = []error{
	ErrInvalidAmount, ErrInvalidAccountType, ErrInvalidCategory, ErrInvalidPaymentMethod,
	ErrInvalidInvoiceType, ErrInvalidEntryType, ErrInvalidPeriod, ErrInvalidTransition,
	ErrRejectionReason, ErrUnbalancedEntry, ErrInvalidLine, ErrEmptyEntry, ErrAccountExists,
	ErrInvoiceNumberExists, ErrEntryNumberExists, ErrInvalidQuantity, ErrInvalidDateRange,
	ErrPaymentTargetConflict,
}

func writeErr(w http.ResponseWriter, err error) {
	if httpx.WriteValidation(w, err) {
		return
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrForeignOrganization) {
		httpx.WriteError(w, http.StatusNotFound, "Not found.")
		return
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	httpx.WriteError(w, http.StatusInternalServerError, err.Error())
}

func writeList[T any](w http.ResponseWriter, items []T, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": items})
}

func writeData(w http.ResponseWriter, status int, v any) {
	httpx.WriteJSON(w, status, map[string]any{"success": true, "data": v})
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty input gives the zero time.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errBadDate
	}
	return t.UTC(), nil
}

// dates parses each named value into its target and collects field errors.
func dates(verr *httpx.ValidationError, fields map[string]*time.Time, values map[string]string) {
	for name, target := range fields {
		t, err := parseDate(values[name])
		if err != nil {
			verr.Add(name, msgBadDate)
			continue
		}
		*target = t
	}
}

func orgOf(r *http.Request) *organizations.Membership {
	return organizations.MembershipFrom(r.Context())
}

// seesAllFinancials reports whether the caller may read every member's
// records rather than only their own.
func seesAllFinancials(r *http.Request) bool {
	if u := authctx.UserFrom(r.Context()); u != nil && u.IsSuperuser {
		return true
	}
	return orgOf(r).HasAny(organizations.PermViewAllFinancial, organizations.PermViewReports)
}

func userID(r *http.Request) string {
	if u := authctx.UserFrom(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

// Accounts

type accountRequest struct {
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"account_type"`
	Description string      `json:"description"`
	ParentID    string      `json:"parent"`
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), orgOf(r).Organization.ID)
	writeList(w, accounts, err)
}

func (h *handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"code": req.Code, "name": req.Name, "account_type": string(req.Type)})
	if req.Type != "" && !req.Type.Valid() {
		verr.Add("account_type", ErrInvalidAccountType.Error())
	}
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}
	ms := orgOf(r)
	if req.ParentID != "" {
		parent, err := h.svc.GetAccount(r.Context(), req.ParentID)
		if err != nil || parent.OrganizationID != ms.Organization.ID {
			httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"parent": {"Account not found."}})
			return
		}
	}
	acct, err := h.svc.CreateAccount(r.Context(), Account{
		OrganizationID: ms.Organization.ID,
		Code:           req.Code,
		Name:           req.Name,
		Type:           req.Type,
		Description:    req.Description,
		ParentID:       req.ParentID,
	})
	if errors.Is(err, ErrAccountExists) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"code": {"An account with this code already exists."}})
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, acct)
}

// Expenses

type expenseRequest struct {
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     ExpenseCategory `json:"category"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	ExpenseDate  string          `json:"expense_date"`
	DepartmentID string          `json:"department"`
	TeamID       string          `json:"team"`
	AccountID    string          `json:"account"`
	ReceiptURL   string          `json:"receipt_url"`
}

func (h *handlers) listExpenses(w http.ResponseWriter, r *http.Request) {
	ms := orgOf(r)
	filter := ExpenseFilter{Status: ExpenseStatus(strings.ToUpper(r.URL.Query().Get("status")))}
	if !seesAllFinancials(r) {
		filter.MemberID = ms.Member.ID
	}
	expenses, err := h.svc.ListExpenses(r.Context(), ms.Organization.ID, filter)
	writeList(w, expenses, err)
}

// loadExpense fetches the expense in the URL and hides other organizations'
// records, and other members' records from callers without financial read
// access.
func (h *handlers) loadExpense(w http.ResponseWriter, r *http.Request) (*Expense, bool) {
	exp, err := h.svc.GetExpense(r.Context(), chi.URLParam(r, "expenseID"))
	ms := orgOf(r)
	if err == nil && (exp.OrganizationID != ms.Organization.ID ||
		(exp.MemberID != ms.Member.ID && !seesAllFinancials(r))) {
		err = store.ErrNotFound
	}
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return exp, true
}

func (h *handlers) getExpense(w http.ResponseWriter, r *http.Request) {
	if exp, ok := h.loadExpense(w, r); ok {
		writeData(w, http.StatusOK, exp)
	}
}

func (h *handlers) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"title": req.Title})
	if req.Amount < 1 {
		verr.Add("amount", "Ensure this value is greater than or equal to 0.01.")
	}
	if req.Category != "" && !req.Category.Valid() {
		verr.Add("category", ErrInvalidCategory.Error())
	}
	var expenseDate time.Time
	dates(verr, map[string]*time.Time{"expense_date": &expenseDate}, map[string]string{"expense_date": req.ExpenseDate})
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := orgOf(r)
	dept := req.DepartmentID
	if dept == "" {
		dept = ms.Member.DepartmentID
	}
	exp, err := h.svc.CreateExpense(r.Context(), Expense{
		OrganizationID: ms.Organization.ID,
		MemberID:       ms.Member.ID,
		DepartmentID:   dept,
		TeamID:         req.TeamID,
		AccountID:      req.AccountID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Amount:         req.Amount,
		Currency:       req.Currency,
		ExpenseDate:    expenseDate,
		ReceiptURL:     req.ReceiptURL,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeExpenseSubmitted, ms.Organization.ID,
		map[string]any{"expense_id": exp.ID, "amount": exp.Amount, "member_id": exp.MemberID})
	writeData(w, http.StatusCreated, exp)
}

func (h *handlers) approveExpense(w http.ResponseWriter, r *http.Request) {
	exp, ok := h.loadExpense(w, r)
	if !ok {
		return
	}
	exp, err := h.svc.ApproveExpense(r.Context(), exp.ID, userID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeExpenseApproved, exp.OrganizationID,
		map[string]any{"expense_id": exp.ID, "approved_by": exp.ApprovedBy})
	writeData(w, http.StatusOK, exp)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) rejectExpense(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"reason": {httpx.MsgRequired}})
		return
	}
	exp, ok := h.loadExpense(w, r)
	if !ok {
		return
	}
	exp, err := h.svc.RejectExpense(r.Context(), exp.ID, userID(r), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeExpenseRejected, exp.OrganizationID,
		map[string]any{"expense_id": exp.ID, "reason": exp.RejectionReason})
	writeData(w, http.StatusOK, exp)
}

type payRequest struct {
	Method    PaymentMethod `json:"payment_method"`
	Reference string        `json:"payment_reference"`
	PaidDate  string        `json:"paid_date"`
}

func (h *handlers) payExpense(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"payment_method": string(req.Method)})
	if req.Method != "" && !req.Method.Valid() {
		verr.Add("payment_method", ErrInvalidPaymentMethod.Error())
	}
	var paidAt time.Time
	dates(verr, map[string]*time.Time{"paid_date": &paidAt}, map[string]string{"paid_date": req.PaidDate})
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}
	exp, ok := h.loadExpense(w, r)
	if !ok {
		return
	}
	exp, payment, err := h.svc.PayExpense(r.Context(), exp.ID, PayRequest{
		Method:      req.Method,
		Reference:   req.Reference,
		ProcessedBy: userID(r),
		PaidAt:      paidAt,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeExpensePaid, exp.OrganizationID,
		map[string]any{"expense_id": exp.ID, "payment_id": payment.ID, "amount": payment.Amount})
	writeData(w, http.StatusOK, map[string]any{"expense": exp, "payment": payment})
}

// Invoices

type invoiceLineRequest struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	AccountID   string `json:"account"`
}

type invoiceRequest struct {
	Number         string               `json:"invoice_number"`
	Type           InvoiceType          `json:"invoice_type"`
	ClientName     string               `json:"client_name"`
	ClientEmail    string               `json:"client_email"`
	ClientAddress  string               `json:"client_address"`
	TaxAmount      int64                `json:"tax_amount"`
	DiscountAmount int64                `json:"discount_amount"`
	Currency       string               `json:"currency"`
	IssueDate      string               `json:"issue_date"`
	DueDate        string               `json:"due_date"`
	Notes          string               `json:"notes"`
	Terms          string               `json:"terms"`
	Lines          []invoiceLineRequest `json:"line_items"`
}

func (h *handlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	status := InvoiceStatus(strings.ToUpper(r.URL.Query().Get("status")))
	invoices, err := h.svc.ListInvoices(r.Context(), orgOf(r).Organization.ID, status)
	writeList(w, invoices, err)
}

func (h *handlers) loadInvoice(w http.ResponseWriter, r *http.Request) (*Invoice, bool) {
	inv, err := h.svc.GetInvoice(r.Context(), chi.URLParam(r, "invoiceID"))
	if err == nil && inv.OrganizationID != orgOf(r).Organization.ID {
		err = store.ErrNotFound
	}
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return inv, true
}

func (h *handlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	if inv, ok := h.loadInvoice(w, r); ok {
		paid, err := h.svc.InvoicePaidTotal(r.Context(), inv.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"invoice": inv, "amount_paid": paid})
	}
}

func (h *handlers) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"client_name": req.ClientName})
	if req.Type != "" && req.Type != InvoiceCustomer && req.Type != InvoiceVendor {
		verr.Add("invoice_type", ErrInvalidInvoiceType.Error())
	}
	var issue, due time.Time
	dates(verr, map[string]*time.Time{"issue_date": &issue, "due_date": &due},
		map[string]string{"issue_date": req.IssueDate, "due_date": req.DueDate})
	lines := make([]InvoiceLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		if l.Quantity < 1 {
			verr.Add("line_items", ErrInvalidQuantity.Error())
		}
		lines = append(lines, InvoiceLine{Description: l.Description, Quantity: l.Quantity, UnitPrice: l.UnitPrice, AccountID: l.AccountID})
	}
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := orgOf(r)
	inv, err := h.svc.CreateInvoice(r.Context(), Invoice{
		OrganizationID: ms.Organization.ID,
		Number:         req.Number,
		Type:           req.Type,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientAddress:  req.ClientAddress,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		Currency:       req.Currency,
		IssueDate:      issue,
		DueDate:        due,
		Notes:          req.Notes,
		Terms:          req.Terms,
		CreatedBy:      userID(r),
		Lines:          lines,
	})
	if errors.Is(err, ErrInvoiceNumberExists) {
		httpx.WriteErrors(w, http.StatusBadRequest, map[string][]string{"invoice_number": {"An invoice with this number already exists."}})
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypeInvoiceCreated, ms.Organization.ID,
		map[string]any{"invoice_id": inv.ID, "invoice_number": inv.Number, "total_amount": inv.TotalAmount})
	writeData(w, http.StatusCreated, inv)
}

func (h *handlers) invoiceAction(apply func(ctx context.Context, id string) (*Invoice, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, ok := h.loadInvoice(w, r)
		if !ok {
			return
		}
		inv, err := apply(r.Context(), inv.ID)
		if err != nil {
			writeErr(w, err)
			return
		}
		h.events.Emit(r.Context(), EventTypeInvoiceStatusChanged, inv.OrganizationID,
			map[string]any{"invoice_id": inv.ID, "status": string(inv.Status)})
		writeData(w, http.StatusOK, inv)
	}
}

// Payments

type paymentRequest struct {
	InvoiceID   string        `json:"invoice"`
	ExpenseID   string        `json:"expense"`
	Amount      int64         `json:"amount"`
	Method      PaymentMethod `json:"payment_method"`
	PaymentDate string        `json:"payment_date"`
	Reference   string        `json:"reference_number"`
	Notes       string        `json:"notes"`
}

func (h *handlers) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.ListPayments(r.Context(), orgOf(r).Organization.ID)
	writeList(w, payments, err)
}

func (h *handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"payment_method": string(req.Method)})
	if req.Amount < 1 {
		verr.Add("amount", "Ensure this value is greater than or equal to 0.01.")
	}
	if req.Method != "" && !req.Method.Valid() {
		verr.Add("payment_method", ErrInvalidPaymentMethod.Error())
	}
	var paid time.Time
	dates(verr, map[string]*time.Time{"payment_date": &paid}, map[string]string{"payment_date": req.PaymentDate})
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := orgOf(r)
	payment, err := h.svc.RecordPayment(r.Context(), Payment{
		OrganizationID: ms.Organization.ID,
		InvoiceID:      req.InvoiceID,
		ExpenseID:      req.ExpenseID,
		Amount:         req.Amount,
		Method:         req.Method,
		PaymentDate:    paid,
		Reference:      req.Reference,
		Notes:          req.Notes,
		ProcessedBy:    userID(r),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.events.Emit(r.Context(), EventTypePaymentRecorded, ms.Organization.ID,
		map[string]any{"payment_id": payment.ID, "invoice_id": payment.InvoiceID, "amount": payment.Amount})
	writeData(w, http.StatusCreated, payment)
}

// Journal entries

type journalLineRequest struct {
	AccountID    string `json:"account"`
	Description  string `json:"description"`
	Debit        int64  `json:"debit"`
	Credit       int64  `json:"credit"`
	DepartmentID string `json:"department"`
	TeamID       string `json:"team"`
}

type journalRequest struct {
	Number      string               `json:"entry_number"`
	Type        EntryType            `json:"entry_type"`
	Date        string               `json:"entry_date"`
	Description string               `json:"description"`
	InvoiceID   string               `json:"invoice"`
	ExpenseID   string               `json:"expense"`
	Lines       []journalLineRequest `json:"lines"`
}

func (h *handlers) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListEntries(r.Context(), orgOf(r).Organization.ID)
	writeList(w, entries, err)
}

func (h *handlers) postEntry(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{"description": req.Description})
	var date time.Time
	dates(verr, map[string]*time.Time{"entry_date": &date}, map[string]string{"entry_date": req.Date})
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	ms := orgOf(r)
	entry := JournalEntry{
		OrganizationID: ms.Organization.ID,
		Number:         req.Number,
		Type:           req.Type,
		Date:           date,
		Description:    req.Description,
		InvoiceID:      req.InvoiceID,
		ExpenseID:      req.ExpenseID,
		CreatedBy:      userID(r),
	}
	for _, l := range req.Lines {
		entry.Lines = append(entry.Lines, JournalLine{
			AccountID:    l.AccountID,
			Description:  l.Description,
			Debit:        l.Debit,
			Credit:       l.Credit,
			DepartmentID: l.DepartmentID,
			TeamID:       l.TeamID,
		})
	}
	posted, err := h.svc.PostEntry(r.Context(), entry)
	if err != nil {
		writeErr(w, err)
		return
	}
	debits, _ := posted.Totals()
	h.events.Emit(r.Context(), EventTypeJournalPosted, ms.Organization.ID,
		map[string]any{"entry_id": posted.ID, "entry_number": posted.Number, "amount": debits})
	writeData(w, http.StatusCreated, posted)
}

// Budgets

type budgetRequest struct {
	Name         string       `json:"name"`
	DepartmentID string       `json:"department"`
	TeamID       string       `json:"team"`
	Period       BudgetPeriod `json:"period_type"`
	StartDate    string       `json:"start_date"`
	EndDate      string       `json:"end_date"`
	TotalBudget  int64        `json:"total_budget"`
	Notes        string       `json:"notes"`
}

// BudgetView adds the derived figures to a budget.
type BudgetView struct {
	Budget
	Remaining   int64   `json:"remaining"`
	Utilization float64 `json:"utilization_percentage"`
}

func viewBudget(b Budget) BudgetView {
	return BudgetView{Budget: b, Remaining: b.Remaining(), Utilization: b.Utilization()}
}

func (h *handlers) listBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.svc.ListBudgets(r.Context(), orgOf(r).Organization.ID)
	views := make([]BudgetView, 0, len(budgets))
	for _, b := range budgets {
		views = append(views, viewBudget(b))
	}
	writeList(w, views, err)
}

func (h *handlers) createBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !httpx.DecodeOrReject(w, r, &req) {
		return
	}
	verr := httpx.NewValidationError()
	verr.Require(map[string]string{
		"name": req.Name, "period_type": string(req.Period),
		"start_date": req.StartDate, "end_date": req.EndDate,
	})
	if req.Period != "" && !req.Period.Valid() {
		verr.Add("period_type", ErrInvalidPeriod.Error())
	}
	var start, end time.Time
	dates(verr, map[string]*time.Time{"start_date": &start, "end_date": &end},
		map[string]string{"start_date": req.StartDate, "end_date": req.EndDate})
	if httpx.WriteValidation(w, verr.Err()) {
		return
	}

	b, err := h.svc.CreateBudget(r.Context(), Budget{
		OrganizationID: orgOf(r).Organization.ID,
		DepartmentID:   req.DepartmentID,
		TeamID:         req.TeamID,
		Name:           req.Name,
		Period:         req.Period,
		StartDate:      start,
		EndDate:        end,
		TotalBudget:    req.TotalBudget,
		Notes:          req.Notes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, viewBudget(*b))
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.TrialBalance(r.Context(), orgOf(r).Organization.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, s)
}
