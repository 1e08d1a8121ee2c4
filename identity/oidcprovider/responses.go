package oidcprovider

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-clinic-session/identity"
	"github.com/jrsteele09/go-clinic-session/sessions"
	"golang.org/x/oauth2"
)

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// signUpResponse accepts both shapes a GoTrue style sign-up returns: a bare
// user when confirmation is pending, or a session with the user nested.
type signUpResponse struct {
	userResponse
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *userResponse `json:"user"`
}

func (r signUpResponse) identity() sessions.Identity {
	if r.User != nil {
		return sessions.Identity{ID: r.User.ID, Email: r.User.Email}
	}
	return sessions.Identity{ID: r.ID, Email: r.Email}
}

func (r signUpResponse) session(now time.Time) *sessions.Session {
	expiresAt := r.ExpiresAt
	if expiresAt == 0 {
		expiresAt = now.Unix() + r.ExpiresIn
	}
	return &sessions.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresAt:    expiresAt,
		User:         r.identity(),
	}
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (b errorBody) message() string {
	for _, m := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	return b.Error
}

func apiErrorFromBody(status int, body []byte) *identity.APIError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := eb.message()
	if msg == "" {
		msg = http.StatusText(status)
	}
	if status == http.StatusTooManyRequests {
		msg = identity.MsgRateLimited
	}
	return &identity.APIError{Status: status, Code: eb.code(), Message: msg}
}

func apiErrorFromResponse(resp *http.Response) *identity.APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return apiErrorFromBody(resp.StatusCode, body)
}

// toAPIError converts token endpoint failures; other errors pass through.
func toAPIError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		apiErr := apiErrorFromBody(status, re.Body)
		if re.ErrorDescription != "" && status != http.StatusTooManyRequests {
			apiErr.Message = re.ErrorDescription
		}
		return apiErr
	}
	return err
}
