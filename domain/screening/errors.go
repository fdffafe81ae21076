package screening

import (
	stderrors "errors"
	"fmt"

	"ligandscreen/internal/errors"
)

// OracleErrorKind classifies why a single candidate could not be scored.
type OracleErrorKind string

const (
	OracleTransport       OracleErrorKind = "transport"
	OracleRemote          OracleErrorKind = "remote"
	OracleInvalidResponse OracleErrorKind = "invalid_response"
	OracleTimeout         OracleErrorKind = "timeout"
	OracleCancelled       OracleErrorKind = "cancelled"
	OracleFailed          OracleErrorKind = "failed"
)

// OracleError is the per-candidate, recoverable scoring failure.
type OracleError struct {
	Kind       OracleErrorKind
	SMILES     string
	StatusCode int
	Err        error
}

func (e *OracleError) Error() string {
	msg := fmt.Sprintf("oracle %s", e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.SMILES != "" {
		msg = fmt.Sprintf("%s for %q", msg, e.SMILES)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OracleError) Unwrap() error { return e.Err }

// NewOracleError builds an OracleError of the given kind.
func NewOracleError(kind OracleErrorKind, smiles string, err error) *OracleError {
	return &OracleError{Kind: kind, SMILES: smiles, Err: err}
}

// InvalidResponse reports a payload that is not a usable affinity.
func InvalidResponse(smiles, format string, args ...interface{}) *OracleError {
	return NewOracleError(OracleInvalidResponse, smiles, fmt.Errorf(format, args...))
}

// AsOracleError extracts an OracleError from err's chain.
func AsOracleError(err error) (*OracleError, bool) {
	var oe *OracleError
	if stderrors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// IsOracleError reports whether err is a per-candidate scoring failure.
func IsOracleError(err error) bool {
	_, ok := AsOracleError(err)
	return ok
}

// IsConfigError reports whether err rejected the run before any work started.
func IsConfigError(err error) bool {
	return errors.HasCode(err, errors.CodeConfigInvalid)
}
