package cin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// AuthService is the account API used by the login screens.
type AuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, email, password string) (string, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
}

// AuthClient implements AuthService over HTTP.
type AuthClient struct {
	httpClient *resty.Client
}

var _ AuthService = (*AuthClient)(nil)

// NewAuthClient creates a client for the account service at opts.BaseURL.
func NewAuthClient(opts ClientOpts) *AuthClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultAuthBaseURL
	}
	return &AuthClient{httpClient: newRestyClient(baseURL, opts.Debug)}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login checks the credentials; on success the service emails an OTP.
func (c *AuthClient) Login(ctx context.Context, email, password string) (string, error) {
	return c.post(ctx, "/login", credentials{Email: email, Password: password})
}

// Register creates an account.
func (c *AuthClient) Register(ctx context.Context, email, password string) (string, error) {
	return c.post(ctx, "/register", credentials{Email: email, Password: password})
}

// VerifyOTP completes a login started with Login.
func (c *AuthClient) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	return c.post(ctx, "/verify_otp", otpRequest{Email: email, OTP: otp})
}

// ForgotPassword asks the service to send a password reset email.
func (c *AuthClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.post(ctx, "/forgot_password", emailRequest{Email: email})
}

// post sends one JSON request and returns the "message" of a 2xx response.
func (c *AuthClient) post(ctx context.Context, path string, body any) (string, error) {
	res, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("request failed: POST %s: %w", path, err)
	}

	if res.IsError() || res.StatusCode() >= 300 {
		apiErr := &APIError{Status: res.StatusCode(), Message: serverMessage(res.Body())}
		log.Warn().Str("path", path).Int("status", apiErr.Status).Str("error", apiErr.Message).Msg("auth request rejected")
		return "", apiErr
	}

	var mr messageResponse
	// Some endpoints answer with an empty body.
	_ = json.Unmarshal(res.Body(), &mr)
	return mr.Message, nil
}
