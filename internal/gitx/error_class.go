// SPDX-License-Identifier: MIT
package gitx

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrAuthFailure marks authentication/authorization failures.
	ErrAuthFailure = errors.New("git auth error")
	// ErrNetworkFailure marks network/transport failures.
	ErrNetworkFailure = errors.New("git network error")
	// ErrCorruptRepo marks corrupt or invalid-repository failures.
	ErrCorruptRepo = errors.New("git corrupt repository")
	// ErrMissingRemoteRef marks missing upstream/ref/remote failures.
	ErrMissingRemoteRef = errors.New("git missing remote")
)

// Error classes returned by ClassifyError.
const (
	ClassAuth          = "auth"
	ClassNetwork       = "network"
	ClassTimeout       = "timeout"
	ClassCorrupt       = "corrupt"
	ClassMissingRemote = "missing_remote"
	ClassUnknown       = "unknown"
)

// ClassifyError maps git/process errors into broad actionable categories.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTimeout
	}
	if errors.Is(err, ErrAuthFailure) {
		return ClassAuth
	}
	if errors.Is(err, ErrNetworkFailure) {
		return ClassNetwork
	}
	if errors.Is(err, ErrCorruptRepo) {
		return ClassCorrupt
	}
	if errors.Is(err, ErrMissingRemoteRef) {
		return ClassMissingRemote
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission denied", "authentication failed", "authentication required", "access denied", "publickey", "could not read username", "could not read from remote", "credential", "terminal prompts disabled"):
		return ClassAuth
	case containsAny(msg, "could not resolve host", "network is unreachable", "connection refused", "connection timed out", "failed to connect", "unable to access", "temporary failure in name resolution", "tls handshake timeout"):
		return ClassNetwork
	case containsAny(msg, "timeout", "timed out", "deadline exceeded", "signal: killed"):
		return ClassTimeout
	case containsAny(msg, "not a git repository", "bad object", "corrupt", "object file"):
		return ClassCorrupt
	case containsAny(msg, "repository not found", "couldn't find remote ref", "remote ref does not exist", "no such remote", "does not appear to be a git repository"):
		return ClassMissingRemote
	default:
		return ClassUnknown
	}
}

func containsAny(msg string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
