package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const formContentType = "application/x-www-form-urlencoded"

func credentialForm(creds Credentials) string {
	form := url.Values{}
	form.Set("email", strings.TrimSpace(creds.Email))
	form.Set("password", creds.Password)
	return form.Encode()
}

// Register creates an account. The backend may answer with a token, in which
// case the caller is signed in immediately; otherwise the returned token is nil.
func (c *Client) Register(ctx context.Context, creds Credentials) (*Token, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	var raw map[string]any
	err := c.do(ctx, request{
		op:          "register",
		method:      http.MethodPost,
		path:        "/auth/register",
		body:        strings.NewReader(credentialForm(creds)),
		contentType: formContentType,
	}, &raw)
	if err != nil {
		return nil, err
	}
	access, _ := raw["access_token"].(string)
	if strings.TrimSpace(access) == "" {
		return nil, nil
	}
	tokenType, _ := raw["token_type"].(string)
	return &Token{AccessToken: access, TokenType: tokenType}, nil
}

// Login exchanges credentials for a bearer token. A 401 here means the
// credentials were rejected and is reported as a validation error.
func (c *Client) Login(ctx context.Context, creds Credentials) (Token, error) {
	if err := creds.Validate(); err != nil {
		return Token{}, err
	}
	var token Token
	err := c.do(ctx, request{
		op:          "login",
		method:      http.MethodPost,
		path:        "/auth/token",
		body:        strings.NewReader(credentialForm(creds)),
		contentType: formContentType,
	}, &token)
	if err != nil {
		return Token{}, err
	}
	return checkToken("login", token)
}

// StartGitHubLogin asks the backend for the GitHub authorization URL.
func (c *Client) StartGitHubLogin(ctx context.Context) (OAuthStart, error) {
	var start OAuthStart
	err := c.do(ctx, request{
		op:     "start github login",
		method: http.MethodGet,
		path:   "/auth/github/login",
	}, &start)
	if err != nil {
		return OAuthStart{}, err
	}
	if strings.TrimSpace(start.AuthorizationURL) == "" {
		return OAuthStart{}, &APIError{Op: "start github login", Message: "Unable to start GitHub login.", Kind: ErrTransport}
	}
	return start, nil
}

// CompleteGitHubLogin trades the code/state pair from the GitHub redirect for
// a bearer token.
func (c *Client) CompleteGitHubLogin(ctx context.Context, code, state string) (Token, error) {
	code = strings.TrimSpace(code)
	state = strings.TrimSpace(state)
	if code == "" || state == "" {
		return Token{}, validationError("complete github login", []FieldError{{Message: "Missing GitHub authorization data."}})
	}
	var token Token
	err := c.do(ctx, request{
		op:     "complete github login",
		method: http.MethodGet,
		path:   "/auth/github/callback",
		query:  url.Values{"code": {code}, "state": {state}},
	}, &token)
	if err != nil {
		return Token{}, err
	}
	return checkToken("complete github login", token)
}

func checkToken(op string, token Token) (Token, error) {
	if strings.TrimSpace(token.AccessToken) == "" {
		return Token{}, &APIError{Op: op, Message: "Login failed. Please try again.", Kind: ErrTransport}
	}
	return token, nil
}
