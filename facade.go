package socialauth

import (
	"fmt"

	socialcommand "github.com/goliatone/go-social-auth/command"
	socialquery "github.com/goliatone/go-social-auth/query"
)

type CommandQueryService interface {
	socialcommand.MutatingService
	socialquery.LinkReader
}

type Commands struct {
	BeginAuthorization *socialcommand.BeginAuthorizationCommand
	HandleCallback     *socialcommand.HandleCallbackCommand
	DetachAccount      *socialcommand.DetachAccountCommand
}

type Queries struct {
	FindLinkedAccount *socialquery.FindLinkedAccountQuery
	IsAttached        *socialquery.IsAttachedQuery
	ListAccountLinks  *socialquery.ListAccountLinksQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	linkReader socialquery.LinkReader
}

// WithLinkReader serves the queries from reader instead of the service, for
// example a read replica backed store.
func WithLinkReader(reader socialquery.LinkReader) FacadeOption {
	return func(options *facadeOptions) {
		options.linkReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("socialauth: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.linkReader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginAuthorization: socialcommand.NewBeginAuthorizationCommand(service),
		HandleCallback:     socialcommand.NewHandleCallbackCommand(service),
		DetachAccount:      socialcommand.NewDetachAccountCommand(service),
	}
	facade.queries = Queries{
		FindLinkedAccount: socialquery.NewFindLinkedAccountQuery(reader),
		IsAttached:        socialquery.NewIsAttachedQuery(reader),
		ListAccountLinks:  socialquery.NewListAccountLinksQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
