package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput           = "SOCIAL_AUTH_BAD_INPUT"
	ServiceErrorProviderNotFound   = "SOCIAL_AUTH_PROVIDER_NOT_FOUND"
	ServiceErrorProfileFetchFailed = "SOCIAL_AUTH_PROFILE_FETCH_FAILED"
	ServiceErrorAlreadyLinked      = "SOCIAL_AUTH_ALREADY_LINKED"
	ServiceErrorIdentityConflict   = "SOCIAL_AUTH_IDENTITY_CONFLICT"
	ServiceErrorProvisioningFailed = "SOCIAL_AUTH_PROVISIONING_FAILED"
	ServiceErrorDetachFailed       = "SOCIAL_AUTH_DETACH_FAILED"
	ServiceErrorInternal           = "SOCIAL_AUTH_INTERNAL_ERROR"
)

var (
	ErrProviderNotFound = errors.New("core: provider not found")
	ErrProfileFetch     = errors.New("core: profile fetch failed")
	ErrAlreadyLinked    = errors.New("core: provider already linked to account")
	ErrIdentityConflict = errors.New("core: external identity already linked to another account")
	ErrProvisioning     = errors.New("core: account provisioning failed")
	ErrDetachFailure    = errors.New("core: identity link not found for detach")
)

type ProviderNotFoundError struct {
	ProviderSlug string
}

func (e *ProviderNotFoundError) Error() string {
	if e == nil {
		return ErrProviderNotFound.Error()
	}
	return fmt.Sprintf("%s: %q", ErrProviderNotFound.Error(), e.ProviderSlug)
}

func (e *ProviderNotFoundError) Unwrap() error { return ErrProviderNotFound }

func (e *ProviderNotFoundError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ServiceErrorProviderNotFound).
		WithMetadata(map[string]any{"provider_slug": providerSlugOf(e)})
}

// ProfileFetchError is returned when the OAuth client fails, times out or
// yields an empty profile. No mutation has happened when it is returned.
type ProfileFetchError struct {
	ProviderSlug string
	Cause        error
}

func (e *ProfileFetchError) Error() string {
	if e == nil {
		return ErrProfileFetch.Error()
	}
	message := ErrProfileFetch.Error() + ": provider " + e.ProviderSlug
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *ProfileFetchError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrProfileFetch
	}
	return errors.Join(ErrProfileFetch, e.Cause)
}

func (e *ProfileFetchError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ServiceErrorProfileFetchFailed).
		WithMetadata(map[string]any{"provider_slug": e.ProviderSlug})
}

type AlreadyLinkedError struct {
	AccountID    AccountID
	ProviderSlug string
}

func (e *AlreadyLinkedError) Error() string {
	if e == nil {
		return ErrAlreadyLinked.Error()
	}
	return fmt.Sprintf("%s: account %s provider %s", ErrAlreadyLinked.Error(), e.AccountID, e.ProviderSlug)
}

func (e *AlreadyLinkedError) Unwrap() error { return ErrAlreadyLinked }

func (e *AlreadyLinkedError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ServiceErrorAlreadyLinked).
		WithMetadata(map[string]any{
			"account_id":    e.AccountID,
			"provider_slug": e.ProviderSlug,
		})
}

// IdentityConflictError reports that (ProviderSlug, ExternalID) is owned by an
// account other than AccountID. OwnerID is empty when the conflict was only
// observed through the storage constraint.
type IdentityConflictError struct {
	AccountID    AccountID
	OwnerID      AccountID
	ProviderSlug string
	ExternalID   string
}

func (e *IdentityConflictError) Error() string {
	if e == nil {
		return ErrIdentityConflict.Error()
	}
	return fmt.Sprintf("%s: provider %s external id %s", ErrIdentityConflict.Error(), e.ProviderSlug, e.ExternalID)
}

func (e *IdentityConflictError) Unwrap() error { return ErrIdentityConflict }

func (e *IdentityConflictError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ServiceErrorIdentityConflict).
		WithMetadata(map[string]any{
			"account_id":    e.AccountID,
			"provider_slug": e.ProviderSlug,
		})
}

type ProvisioningError struct {
	ProviderSlug string
	ExternalID   string
	Cause        error
}

func (e *ProvisioningError) Error() string {
	if e == nil {
		return ErrProvisioning.Error()
	}
	message := ErrProvisioning.Error() + ": provider " + e.ProviderSlug
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *ProvisioningError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrProvisioning
	}
	return errors.Join(ErrProvisioning, e.Cause)
}

func (e *ProvisioningError) ToServiceError() *goerrors.Error {
	return goerrors.New(ErrProvisioning.Error(), goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorProvisioningFailed).
		WithMetadata(map[string]any{"provider_slug": e.ProviderSlug})
}

type DetachFailureError struct {
	AccountID    AccountID
	ProviderSlug string
}

func (e *DetachFailureError) Error() string {
	if e == nil {
		return ErrDetachFailure.Error()
	}
	return fmt.Sprintf("%s: account %s provider %s", ErrDetachFailure.Error(), e.AccountID, e.ProviderSlug)
}

func (e *DetachFailureError) Unwrap() error { return ErrDetachFailure }

func (e *DetachFailureError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ServiceErrorDetachFailed).
		WithMetadata(map[string]any{
			"account_id":    e.AccountID,
			"provider_slug": e.ProviderSlug,
		})
}

type LinkConstraint string

const (
	ConstraintExternalIdentity LinkConstraint = "external_identity"
	ConstraintAccountProvider  LinkConstraint = "account_provider"
	ConstraintUnknown          LinkConstraint = "unknown"
)

// LinkConstraintError is what an IdentityLinkStore returns when an insert
// violates one of the link unique keys.
type LinkConstraintError struct {
	Constraint LinkConstraint
	Cause      error
}

func (e *LinkConstraintError) Error() string {
	if e == nil {
		return "core: identity link unique constraint violated"
	}
	message := "core: identity link unique constraint violated (" + string(e.Constraint) + ")"
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *LinkConstraintError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type serviceErrorer interface {
	ToServiceError() *goerrors.Error
}

// MapError converts any error produced by this module into a go-errors envelope
// with category, HTTP status and text code populated.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var typed serviceErrorer
	if errors.As(err, &typed) {
		return ensureServiceErrorEnvelope(typed.ToServiceError())
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func badInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}

func internalError(message string, cause error) error {
	if cause == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ServiceErrorInternal)
	}
	return goerrors.Wrap(cause, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ServiceErrorInternal)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorProviderNotFound
	case goerrors.CategoryConflict:
		return ServiceErrorIdentityConflict
	case goerrors.CategoryAuth:
		return ServiceErrorProfileFetchFailed
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func providerSlugOf(e *ProviderNotFoundError) string {
	if e == nil {
		return ""
	}
	return e.ProviderSlug
}
