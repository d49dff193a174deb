package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/constants"
	"surveydesk-go/internal/credential"
	"surveydesk-go/internal/events"
	"surveydesk-go/internal/upstream"
)

// ErrInvalidToken is returned when sign-in succeeds but the returned token
// cannot be used as a credential.
var ErrInvalidToken = errors.New("account: sign-in returned an unusable token")

// Dispatcher is the part of upstream.Client used here.
type Dispatcher interface {
	Get(ctx context.Context, endpoint string, opts upstream.Options) (*upstream.Result, error)
	Post(ctx context.Context, endpoint string, body any, opts upstream.Options) (*upstream.Result, error)
	Delete(ctx context.Context, endpoint string, opts upstream.Options) (*upstream.Result, error)
}

// CredentialStore is the part of credential.Store used here.
type CredentialStore interface {
	Set(ctx context.Context, slot credential.Slot, value string) error
	ClearAll(ctx context.Context) error
}

// Member is a workspace member.
type Member struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Service performs account and member operations.
type Service struct {
	api       Dispatcher
	store     CredentialStore
	hub       events.Dispatcher
	loginPath string
}

func New(cfg *config.Config, api Dispatcher, store CredentialStore, hub events.Dispatcher) *Service {
	loginPath := cfg.API.LoginPath
	if loginPath == "" {
		loginPath = constants.DefaultLoginPath
	}
	return &Service{api: api, store: store, hub: hub, loginPath: loginPath}
}

// SignIn exchanges email and password for a user credential.
func (s *Service) SignIn(ctx context.Context, email, password string) error {
	body, err := sjson.SetBytes([]byte(`{}`), "email", strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if body, err = sjson.SetBytes(body, "password", password); err != nil {
		return err
	}

	res, err := s.api.Post(ctx, s.loginPath, body, upstream.Options{CancelKey: "account:signin"})
	if err != nil {
		return err
	}

	var token string
	switch res.Kind {
	case upstream.BodyJSON:
		token = res.Get("token").String()
	case upstream.BodyText:
		token = strings.Trim(strings.TrimSpace(res.Text()), `"`)
	}
	if !credential.Validate(token) {
		return ErrInvalidToken
	}
	if err := s.store.Set(ctx, credential.SlotUser, token); err != nil {
		return fmt.Errorf("account: store user token: %w", err)
	}
	log.WithField("email", email).Info("signed in")
	return nil
}

// SignOut clears both credentials.
func (s *Service) SignOut(ctx context.Context) error {
	return s.store.ClearAll(ctx)
}

// UpdateUser updates profile fields and publishes the new profile.
func (s *Service) UpdateUser(ctx context.Context, fields map[string]any) (map[string]any, error) {
	res, err := s.api.Post(ctx, "/api/UpdateUser", fields, upstream.Options{CancelKey: "account:update-user"})
	if err != nil {
		return nil, err
	}
	profile, err := upstream.DecodeAs[map[string]any](res)
	if err != nil {
		return nil, err
	}
	s.dispatch(ctx, events.UserProfileChanged, profile)
	return profile, nil
}

// GetMembers lists workspace members.
func (s *Service) GetMembers(ctx context.Context, opts upstream.Options) ([]Member, error) {
	if opts.CancelKey == "" {
		opts.CancelKey = "account:members"
	}
	res, err := s.api.Get(ctx, "/api/GetMembers", opts)
	if err != nil {
		return nil, err
	}
	return upstream.DecodeAs[[]Member](res)
}

// AddMember invites email with role.
func (s *Service) AddMember(ctx context.Context, email, role string) (Member, error) {
	return s.mutateMember(ctx, "/api/AddMember", email, role)
}

// UpdateMember changes a member's role.
func (s *Service) UpdateMember(ctx context.Context, email, role string) (Member, error) {
	return s.mutateMember(ctx, "/api/UpdateMember", email, role)
}

// DeleteMember removes a member.
func (s *Service) DeleteMember(ctx context.Context, email string) error {
	q := url.Values{"email": {email}}
	if _, err := s.api.Delete(ctx, "/api/DeleteMember", upstream.Options{Query: q}); err != nil {
		return err
	}
	s.dispatch(ctx, events.MemberListChanged, Member{Email: email})
	return nil
}

func (s *Service) mutateMember(ctx context.Context, endpoint, email, role string) (Member, error) {
	res, err := s.api.Post(ctx, endpoint, Member{Email: email, Role: role}, upstream.Options{})
	if err != nil {
		return Member{}, err
	}
	m, err := upstream.DecodeAs[Member](res)
	if err != nil {
		return Member{}, err
	}
	s.dispatch(ctx, events.MemberListChanged, m)
	return m, nil
}

func (s *Service) dispatch(ctx context.Context, kind events.Kind, payload any) {
	if s.hub == nil {
		return
	}
	if !s.hub.Dispatch(ctx, kind, payload) {
		log.WithField("kind", kind).Debug("no listeners")
	}
}
