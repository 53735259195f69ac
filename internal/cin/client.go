// Package cin talks to the CIN backend: the document upload/extraction
// service and the account service (login, register, OTP, password reset).
package cin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultUploadBaseURL = "http://localhost:5000"
	DefaultAuthBaseURL   = "http://localhost:5001"

	userAgent = "telegram-cin-bot"
)

// ClientOpts configures a backend client.
type ClientOpts struct {
	BaseURL string
	Debug   bool
}

func newRestyClient(baseURL string, debug bool) *resty.Client {
	return resty.New().
		SetDebug(debug).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		})
}

// errorBody is the failure shape shared by all endpoints.
type errorBody struct {
	Error string `json:"error"`
}

// serverMessage extracts the "error" field of a failure body, if any.
func serverMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	return eb.Error
}

// APIError is a non-success response from the account service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}
