package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/datainovate/labconsole/internal/platform/httpx"
	"github.com/datainovate/labconsole/internal/rbac"
	"github.com/datainovate/labconsole/internal/shared"
)

// ErrMalformedLogin is returned when a successful login response does not
// carry a usable principal and token.
var ErrMalformedLogin = errors.New("backend: malformed login response")

// Credentials are the console login form values.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the principal and bearer token issued by the backend.
type LoginResult struct {
	Principal *rbac.Principal
	Token     string
}

type loginPayload struct {
	Token       string          `json:"token"`
	AccessToken string          `json:"access_token"`
	User        *rbac.Principal `json:"user"`
	Admin       *rbac.Principal `json:"admin"`
}

type loginResult struct {
	Token     string          `validate:"required"`
	Principal *rbac.Principal `validate:"required"`
}

var loginValidator = validator.New()

// Login exchanges credentials for a principal and token. Rejected
// credentials surface as shared.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	payload, err := c.do(ctx, http.MethodPost, "/login", "", creds)
	if err != nil {
		if isCredentialRejection(err) {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	var body loginPayload
	if err := json.Unmarshal(unwrapData(payload), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLogin, err)
	}
	result := loginResult{Token: body.Token, Principal: body.User}
	if result.Token == "" {
		result.Token = body.AccessToken
	}
	if result.Principal == nil {
		result.Principal = body.Admin
	}
	if err := loginValidator.Struct(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLogin, err)
	}
	return &LoginResult{Principal: result.Principal, Token: result.Token}, nil
}

// Logout revokes the token on the backend. Failures are not fatal to the
// local logout.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/logout", token, nil)
	return err
}

func isCredentialRejection(err error) bool {
	return errors.Is(err, httpx.ErrUnauthorized) || errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrForbidden)
}
