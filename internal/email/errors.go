package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/emersion/go-imap/client"
)

var (
	// ErrFolderNotFound is returned when a server folder does not exist
	ErrFolderNotFound = errors.New("folder not found")
	// ErrAccountNotFound is returned for an unknown account name
	ErrAccountNotFound = errors.New("account not found")
)

// SettingsError means an account cannot connect until it is reconfigured
type SettingsError struct {
	Account string
	Reason  string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("account %s is missing settings: %s", e.Account, e.Reason)
}

// ConnectionError is returned once every attempt of an operation has failed
type ConnectionError struct {
	Account  string
	Op       string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("account %s: %s failed after %d attempts: %v", e.Account, e.Op, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// UIDMismatchError means fetched UIDs cannot be matched to requested ones
type UIDMismatchError struct {
	Requested []uint32
	Returned  []uint32
}

func (e *UIDMismatchError) Error() string {
	return fmt.Sprintf("fetch returned %d messages for %d requested UIDs", len(e.Returned), len(e.Requested))
}

// MissingPartsError lists the UIDs a body part could not be fetched for
type MissingPartsError struct {
	Part string
	UIDs []uint32
}

func (e *MissingPartsError) Error() string {
	return fmt.Sprintf("part %s missing for UIDs %v", e.Part, e.UIDs)
}

var transientMarkers = []string{
	"connection closed",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"use of closed network connection",
	"too many simultaneous connections",
	"try again",
	"server unavailable",
	"system error",
}

// isTransient reports whether err warrants dropping the session and retrying.
// Server NO/BAD replies arrive as plain errors and are not retried unless they
// describe a dropped or throttled session.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var settingsErr *SettingsError
	if errors.As(err, &settingsErr) ||
		errors.Is(err, ErrFolderNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, client.ErrAlreadyLoggedOut) ||
		errors.Is(err, client.ErrNotLoggedIn) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
