package services

import (
	"errors"
	"net/http"
)

// Client-facing messages.
const (
	MsgEmailRegistered   = "User with this email Id already registered"
	MsgUserIDRequired    = "User ID is required"
	MsgUserNotFound      = "User not found"
	MsgSuccess           = "Success"
	MsgUpdated           = "Data updated successfully"
	MsgTokenNotFound     = "JWT token not found"
	MsgPasswordRequired  = "Password is required"
	MsgWrongPassword     = "You have entered a wrong password"
	MsgInvalidImage      = "Please upload a valid image"
	MsgTooLargeFmt       = "The file is too large. Allowed maximum size is %s."
	MsgInvalidCredential = "Invalid email or password"
	MsgPasswordTooLong   = "Password cannot be longer than 72 bytes"
	MsgValueTooLong      = "A submitted value is too long"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// HTTPError is a failure that stops the operation and is reported to the
// client as {status, message}.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

func badRequest(msg string) error {
	return &HTTPError{Status: http.StatusBadRequest, Message: msg}
}

// Result is a completed operation whose answer may still be negative.
type Result struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func ok(msg string) Result { return Result{Status: http.StatusOK, Message: msg} }
