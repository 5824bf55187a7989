package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/hadibuxm/jadeed/internal/organizations"
	"github.com/hadibuxm/jadeed/internal/platform/activity"
	"github.com/hadibuxm/jadeed/internal/platform/httpx"
	"github.com/hadibuxm/jadeed/internal/platform/store"
)

// Event types emitted by the accounts module.
const (
	EventTypeSignedUp  = "com.jadeed.account.signed_up"
	EventTypeLoggedIn  = "com.jadeed.account.logged_in"
	EventTypeLoggedOut = "com.jadeed.account.logged_out"
)

// User-facing validation messages.
const (
	MsgOrganizationExists = "An organization with this name already exists. Please choose a different name."
	MsgPasswordMismatch   = "The two password fields didn’t match."
	MsgUsernameTaken      = "A user with that username already exists."
	MsgInvalidEmail       = "Enter a valid email address."
	MsgInvalidLogin       = "Invalid username or password."
	MsgInactive           = "This account is inactive."
	MsgSignupFailed       = "We could not complete your signup. Please try again or contact support."
)

// Service implements signup, login and user serialization.
type Service struct {
	store  *store.Store
	users  *Users
	tokens *Tokens
	orgs   *organizations.Service
	config *Config
	events *activity.Emitter
}

// NewService wires the accounts service.
func NewService(st *store.Store, cfg *Config, orgs *organizations.Service, events *activity.Emitter) *Service {
	return &Service{
		store:  st,
		users:  NewUsers(st, cfg.BcryptCost),
		tokens: NewTokens(st, cfg),
		orgs:   orgs,
		config: cfg,
		events: events,
	}
}

// Users returns the user repository.
func (s *Service) Users() *Users {
	return s.users
}

// Tokens returns the JWT service.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// SignUpForm is the signup payload.
type SignUpForm struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Password1        string `json:"password1"`
	Password2        string `json:"password2"`
	OrganizationName string `json:"organization_name"`
	JobTitle         string `json:"job_title"`
	Phone            string `json:"phone"`
}

// SignUpResult is everything SignUp created.
type SignUpResult struct {
	User         *User
	Organization *organizations.Organization
	Membership   *organizations.Membership
}

func (s *Service) validateSignUp(ctx context.Context, form *SignUpForm) error {
	form.Username = strings.TrimSpace(form.Username)
	form.Email = strings.TrimSpace(form.Email)
	form.OrganizationName = strings.TrimSpace(form.OrganizationName)
	form.JobTitle = strings.TrimSpace(form.JobTitle)
	if form.JobTitle == "" {
		form.JobTitle = "Owner"
	}

	verr := httpx.NewValidationError()
	verr.Require(map[string]string{
		"username":          form.Username,
		"email":             form.Email,
		"password1":         form.Password1,
		"password2":         form.Password2,
		"organization_name": form.OrganizationName,
	})
	if form.Email != "" {
		if _, err := mail.ParseAddress(form.Email); err != nil {
			verr.Add("email", MsgInvalidEmail)
		}
	}
	if form.Password1 != "" && form.Password2 != "" && form.Password1 != form.Password2 {
		verr.Add("password2", MsgPasswordMismatch)
	}
	if form.Password2 != "" && len(form.Password2) < s.config.MinPasswordLength {
		verr.Add("password2", fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", s.config.MinPasswordLength))
	}
	if form.Username != "" {
		taken, err := s.users.UsernameExists(ctx, form.Username)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("username", MsgUsernameTaken)
		}
	}
	if !verr.Empty() {
		return verr
	}

	exists, err := s.orgs.OrganizationExists(ctx, form.OrganizationName)
	if err != nil {
		return err
	}
	if exists {
		return httpx.FieldError("organization_name", MsgOrganizationExists)
	}
	return nil
}

// SignUp creates a user, their organization with default roles and a
// "General" department, and an ADMIN membership, all in one transaction.
func (s *Service) SignUp(ctx context.Context, form SignUpForm) (*SignUpResult, error) {
	if err := s.validateSignUp(ctx, &form); err != nil {
		return nil, err
	}

	var res SignUpResult
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.users.Create(ctx, User{
			Username:    form.Username,
			Email:       form.Email,
			FirstName:   strings.TrimSpace(form.FirstName),
			LastName:    strings.TrimSpace(form.LastName),
			IsStaff:     true,
			IsSuperuser: true,
		}, form.Password1)
		if err != nil {
			return err
		}

		org, err := s.orgs.CreateOrganization(ctx, organizations.Organization{
			Name:  form.OrganizationName,
			Email: user.Email,
			Phone: form.Phone,
		})
		if err != nil {
			return err
		}
		if _, err := s.orgs.CreateDefaultRoles(ctx, org.ID); err != nil {
			return err
		}
		dept, err := s.orgs.CreateDepartment(ctx, organizations.Department{
			OrganizationID: org.ID,
			Name:           "General",
			Slug:           "general",
			Description:    "Default department for the organization",
			HeadID:         user.ID,
		})
		if err != nil {
			return err
		}
		admin, err := s.orgs.RoleByType(ctx, org.ID, organizations.RoleAdmin)
		if err != nil {
			return err
		}
		if _, err := s.orgs.AddMember(ctx, organizations.Member{
			UserID:         user.ID,
			OrganizationID: org.ID,
			DepartmentID:   dept.ID,
			RoleID:         admin.ID,
			EmployeeID:     "EMP001",
			JobTitle:       form.JobTitle,
		}); err != nil {
			return err
		}
		membership, err := s.orgs.ActiveMember(ctx, user.ID, org.ID)
		if err != nil {
			return err
		}
		res = SignUpResult{User: user, Organization: org, Membership: membership}
		return nil
	})
	switch {
	case errors.Is(err, organizations.ErrOrganizationExists):
		return nil, httpx.FieldError("organization_name", MsgOrganizationExists)
	case errors.Is(err, ErrUsernameTaken):
		return nil, httpx.FieldError("username", MsgUsernameTaken)
	case err != nil:
		return nil, fmt.Errorf("signup failed: %w", err)
	}

	s.events.Emit(ctx, organizations.EventTypeOrganizationCreated, res.Organization.ID,
		map[string]any{"name": res.Organization.Name, "slug": res.Organization.Slug, "owner": res.User.ID})
	s.events.Emit(ctx, EventTypeSignedUp, res.User.ID,
		map[string]any{"username": res.User.Username, "organization": res.Organization.ID})
	return &res, nil
}

// Login checks credentials. Missing fields come back as a ValidationError.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	verr := httpx.NewValidationError()
	if strings.TrimSpace(username) == "" {
		verr.Add("username", httpx.MsgRequired)
	}
	if password == "" {
		verr.Add("password", httpx.MsgRequired)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := s.users.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	s.events.Emit(ctx, EventTypeLoggedIn, user.ID, map[string]any{"username": user.Username})
	return user, nil
}

// Membership returns the user's active membership, or nil.
func (s *Service) Membership(ctx context.Context, userID string) (*organizations.Membership, error) {
	ms, err := s.orgs.ActiveMember(ctx, userID, "")
	if errors.Is(err, organizations.ErrNoMembership) {
		return nil, nil
	}
	return ms, err
}

// MemberView is the compact membership embedded in a serialized user.
type MemberView struct {
	Organization struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Slug     string `json:"slug"`
		IsActive bool   `json:"is_active"`
	} `json:"organization"`
	Role       *RoleView       `json:"role"`
	Department *DepartmentView `json:"department"`
}

// RoleView is a role reference.
type RoleView struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
}

// DepartmentView is a department reference.
type DepartmentView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// UserView is the API rendering of a user.
type UserView struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	IsStaff     bool        `json:"is_staff"`
	IsSuperuser bool        `json:"is_superuser"`
	Member      *MemberView `json:"member"`
}

// SerializeMember renders ms, or nil.
func SerializeMember(ms *organizations.Membership) *MemberView {
	if ms == nil {
		return nil
	}
	v := &MemberView{}
	v.Organization.ID = ms.Organization.ID
	v.Organization.Name = ms.Organization.Name
	v.Organization.Slug = ms.Organization.Slug
	v.Organization.IsActive = ms.Organization.IsActive
	if ms.Role != nil {
		v.Role = &RoleView{ID: ms.Role.ID, Type: string(ms.Role.Type), Label: ms.Role.Type.Label()}
	}
	if ms.Department != nil {
		v.Department = &DepartmentView{ID: ms.Department.ID, Name: ms.Department.Name, Slug: ms.Department.Slug}
	}
	return v
}

// Serialize renders u with their active membership. A nil ms is looked up.
func (s *Service) Serialize(ctx context.Context, u *User, ms *organizations.Membership) (*UserView, error) {
	if ms == nil {
		var err error
		if ms, err = s.Membership(ctx, u.ID); err != nil {
			return nil, err
		}
	}
	return &UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		Member:      SerializeMember(ms),
	}, nil
}
