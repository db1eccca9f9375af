// Package authorization gates billing and usage operations on organization
// membership. Billing mutations require admin-or-above.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrForbidden = errors.New("forbidden")
)

type Service interface {
	// RequireAdmin fails unless the user holds an owner or admin membership
	// in the organization. It runs before any provider or billing-store call.
	RequireAdmin(ctx context.Context, orgID, userID snowflake.ID) error

	// RequireMember fails unless the user belongs to the organization.
	RequireMember(ctx context.Context, orgID, userID snowflake.ID) error
}

type service struct {
	orgs organizationdomain.Repository
	log  *zap.Logger
}

func NewService(orgs organizationdomain.Repository, log *zap.Logger) Service {
	return &service{orgs: orgs, log: log.Named("authorization")}
}

func (s *service) RequireAdmin(ctx context.Context, orgID, userID snowflake.ID) error {
	role, err := s.role(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if role != organizationdomain.RoleOwner && role != organizationdomain.RoleAdmin {
		s.log.Debug("membership role below admin",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", userID.String()),
			zap.String("role", role))
		return ErrForbidden
	}
	return nil
}

func (s *service) RequireMember(ctx context.Context, orgID, userID snowflake.ID) error {
	_, err := s.role(ctx, orgID, userID)
	return err
}

func (s *service) role(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	if orgID == 0 || userID == 0 {
		return "", ErrForbidden
	}
	role, err := s.orgs.MemberRole(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, organizationdomain.ErrMembershipNotFound) {
			// Non-members learn nothing about whether the org exists.
			return "", ErrForbidden
		}
		return "", err
	}
	return role, nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewService),
)
