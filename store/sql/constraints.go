package sqlstore

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-social-auth/core"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation = "23505"

	constraintLinkExternalIdentity = "social_identity_links_provider_external_key"
	constraintLinkAccountProvider  = "social_identity_links_account_provider_key"
	constraintAccountEmail         = "social_accounts_email_key"
)

// classifyLinkInsertError turns a unique violation on social_identity_links
// into a *core.LinkConstraintError. Other errors are returned unchanged.
func classifyLinkInsertError(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	// sqlite reports the violated columns rather than the constraint name:
	// "UNIQUE constraint failed: social_identity_links.provider_slug, social_identity_links.external_id"
	hint := uniqueViolationHint(err)
	switch {
	case strings.Contains(hint, constraintLinkExternalIdentity),
		strings.Contains(hint, "social_identity_links.external_id"):
		return &core.LinkConstraintError{Constraint: core.ConstraintExternalIdentity, Cause: err}
	case strings.Contains(hint, constraintLinkAccountProvider),
		strings.Contains(hint, "social_identity_links.account_id"):
		return &core.LinkConstraintError{Constraint: core.ConstraintAccountProvider, Cause: err}
	default:
		return &core.LinkConstraintError{Constraint: core.ConstraintUnknown, Cause: err}
	}
}

func isAccountEmailViolation(err error) bool {
	if !isUniqueViolation(err) {
		return false
	}
	hint := uniqueViolationHint(err)
	return strings.Contains(hint, constraintAccountEmail) ||
		strings.Contains(hint, "social_accounts.email")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	if rich := repositoryError(err); rich != nil && rich.Category == repository.CategoryDatabaseDuplicate {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

// uniqueViolationHint collects whatever names the violated key: the postgres
// constraint name, the constraint kept in repository error metadata, or the
// driver message.
func uniqueViolationHint(err error) string {
	parts := []string{err.Error()}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		parts = append(parts, pqErr.Constraint)
	}
	if rich := repositoryError(err); rich != nil {
		if constraint, ok := rich.Metadata["constraint"].(string); ok {
			parts = append(parts, constraint)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// repositoryError returns the go-errors value behind err. The repository
// mappers return *goerrors.RetryableError, which embeds it.
func repositoryError(err error) *goerrors.Error {
	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.BaseError
	}
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich
	}
	return nil
}
