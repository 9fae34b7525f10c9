// Package accounts implements registration and credential checks for
// marketplace accounts. Registration is gated by a configured allow-list of
// usernames; one reserved name grants the operator role.
package accounts

import (
	"context"
	stderrors "errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/storage"
	"github.com/blr-market/marketplace/internal/errors"
	"github.com/blr-market/marketplace/pkg/logger"
)

// Service manages accounts.
type Service struct {
	store    storage.AccountStore
	allowed  []string
	operator string
	log      *logger.Logger
}

// New creates an account service. The allowed slice is the registration
// allow-list; operator is the reserved username that receives the operator
// role.
func New(store storage.AccountStore, allowed []string, operator string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{
		store:    store,
		allowed:  append([]string(nil), allowed...),
		operator: operator,
		log:      log,
	}
}

// RegisterInput carries the fields submitted at registration.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// Register creates an account for an allow-listed username. The username is
// case-normalized before the allow-list check, except for the reserved
// operator name which must be supplied verbatim.
func (s *Service) Register(ctx context.Context, in RegisterInput) (account.Account, error) {
	name := s.normalize(in.Username)
	if name == "" {
		return account.Account{}, errors.Validation("username is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return account.Account{}, errors.Validation("password is required")
	}
	if !s.isAllowed(name) {
		return account.Account{}, errors.Validationf("username %q is not allowed to register", name)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return account.Account{}, errors.Internal("hash password", err)
	}

	role := account.RoleStandard
	if name == s.operator {
		role = account.RoleOperator
	}

	created, err := s.store.CreateAccount(ctx, account.Account{
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
		Email:        strings.TrimSpace(in.Email),
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return account.Account{}, errors.Validationf("username %q is already registered", name)
		}
		return account.Account{}, errors.Internal("create account", err)
	}

	s.log.WithField("account", created.Name).WithField("role", string(created.Role)).Info("account registered")
	return created, nil
}

// Authenticate verifies a username/password pair and returns the matching
// account. Failures are uniform so callers cannot probe for registered names.
func (s *Service) Authenticate(ctx context.Context, username, password string) (account.Account, error) {
	name := s.normalize(username)
	if name == "" || password == "" {
		return account.Account{}, errors.Unauthorized("incorrect username or password")
	}

	acct, err := s.store.GetAccountByName(ctx, name)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return account.Account{}, errors.Unauthorized("incorrect username or password")
		}
		return account.Account{}, errors.Internal("look up account", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return account.Account{}, errors.Unauthorized("incorrect username or password")
	}
	return acct, nil
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id string) (account.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return account.Account{}, errors.NotFound("account not found")
		}
		return account.Account{}, errors.Internal("get account", err)
	}
	return acct, nil
}

// List returns every registered account.
func (s *Service) List(ctx context.Context) ([]account.Account, error) {
	accts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, errors.Internal("list accounts", err)
	}
	return accts, nil
}

// normalize trims and capitalizes a username (first rune upper, rest lower).
// The reserved operator name is exempt and passes through as typed.
func (s *Service) normalize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	if strings.EqualFold(name, s.operator) {
		return name
	}
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(first)) + strings.ToLower(name[size:])
}

func (s *Service) isAllowed(name string) bool {
	for _, candidate := range s.allowed {
		if candidate == name {
			return true
		}
	}
	return false
}
