package errors

import (
	"fmt"

	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
)

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}
func (m Missing) Unwrap() error {
	return domerr.ErrMissing
}

// the database cannot be reached.
type Unavailable struct {
	Cause error
}

var _ error = Unavailable{}

func (u Unavailable) Error() string {
	return fmt.Sprintf("%s: %v", domerr.ErrStoreUnavailable, u.Cause)
}
func (u Unavailable) Unwrap() error {
	return domerr.ErrStoreUnavailable
}

// a param key is re-logged with a different value.
type ParamConflict struct {
	Key    string
	Logged string
	Given  string
}

var _ error = ParamConflict{}

func (p ParamConflict) Error() string {
	return fmt.Sprintf(
		"%v: key '%s' is logged as '%s' (given: '%s')",
		domerr.ErrParamConflict, p.Key, p.Logged, p.Given,
	)
}
func (p ParamConflict) Unwrap() error {
	return domerr.ErrParamConflict
}

// no run matches (experiment, status).
type NoRunFound struct {
	Experiment string
	Status     string
}

var _ error = NoRunFound{}

func (n NoRunFound) Error() string {
	return fmt.Sprintf(
		"no %s run is found in experiment '%s'", n.Status, n.Experiment,
	)
}
func (n NoRunFound) Unwrap() error {
	return domerr.ErrNoRunFound
}
