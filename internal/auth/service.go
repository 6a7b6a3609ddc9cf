package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bher20/gmeter/internal/storage"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"

	// TokenPrefix starts every raw API token: gm_<id>.<secret>.
	TokenPrefix = "gm_"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrUnknownRole  = errors.New("auth: unknown role")
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][3]string{
	{RoleAdmin, "*", "*"},
	{RoleOperator, "eop", "read"},
	{RoleOperator, "eop", "refresh"},
	{RoleOperator, "settings", "read"},
	{RoleOperator, "settings", "write"},
	{RoleOperator, "corrections", "read"},
	{RoleViewer, "eop", "read"},
	{RoleViewer, "settings", "read"},
	{RoleViewer, "corrections", "read"},
}

// Service issues and validates API tokens and answers RBAC questions.
// Each token is a casbin subject grouped under its role.
type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
	now      func() time.Time
}

func NewService(ctx context.Context, s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m, NewAdapter(s))
	if err != nil {
		return nil, err
	}

	rules, err := s.LoadCasbinRules(ctx)
	if err != nil {
		return nil, err
	}
	seeded := false
	for _, r := range rules {
		if r.PType == "p" {
			seeded = true
			break
		}
	}
	if !seeded {
		log.Printf("auth: seeding default policies")
		for _, p := range defaultPolicies {
			if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
				return nil, fmt.Errorf("auth: seed policy %v: %w", p, err)
			}
		}
	}

	return &Service{storage: s, enforcer: e, now: time.Now}, nil
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleViewer:
		return true
	}
	return false
}

// CreateToken stores a new token and returns it together with the raw value,
// which is shown once and never stored.
func (s *Service) CreateToken(ctx context.Context, name, role string, expiresAt *time.Time) (*storage.Token, string, error) {
	if !ValidRole(role) {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	secret := strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	t := storage.Token{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
		Role:       role,
		CreatedAt:  s.now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := s.storage.CreateToken(ctx, t); err != nil {
		return nil, "", err
	}
	if _, err := s.enforcer.AddGroupingPolicy(t.ID, role); err != nil {
		return nil, "", err
	}
	return &t, TokenPrefix + id + "." + secret, nil
}

// ValidateToken checks a raw token and returns the stored record.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*storage.Token, error) {
	id, secret, ok := strings.Cut(strings.TrimPrefix(raw, TokenPrefix), ".")
	if !strings.HasPrefix(raw, TokenPrefix) || !ok || id == "" || secret == "" {
		return nil, ErrInvalidToken
	}

	t, err := s.storage.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(t.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(s.now()) {
		return nil, ErrTokenExpired
	}

	go s.storage.UpdateTokenLastUsed(context.Background(), t.ID)

	return t, nil
}

func (s *Service) ListTokens(ctx context.Context) ([]storage.Token, error) {
	return s.storage.ListTokens(ctx)
}

// RevokeToken deletes a token and its role binding. Unknown IDs are ignored.
func (s *Service) RevokeToken(ctx context.Context, id string) error {
	t, err := s.storage.GetToken(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if err := s.storage.DeleteToken(ctx, id); err != nil {
		return err
	}
	_, err = s.enforcer.RemoveGroupingPolicy(t.ID, t.Role)
	return err
}

func (s *Service) Enforce(sub, obj, act string) (bool, error) {
	return s.enforcer.Enforce(sub, obj, act)
}
