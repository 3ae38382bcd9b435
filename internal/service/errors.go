package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const alreadyAssignedMessage = "Ticket is already assigned and cannot be reassigned"

// authorize consults the policy table before any ticket operation.
func authorize(policy *auth.Policy, actor domain.Principal, operation string) error {
	if actor.UserID <= 0 {
		return apperrors.NewUnauthorized("unauthorized access, please log in")
	}
	allowed, err := policy.Allowed(actor.Role, operation)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !allowed {
		return apperrors.NewForbidden(fmt.Sprintf("role %q may not %s tickets", actor.Role, operation))
	}
	return nil
}

// translate turns repository failures into the domain taxonomy. DomainErrors pass through.
func translate(logger *zap.Logger, err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, details)
	}
	logger.Error("storage failure", zap.String("resource", resource), zap.Any("details", details), zap.Error(err))
	return apperrors.NewStorageError(err)
}
