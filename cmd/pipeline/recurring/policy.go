package recurring

import (
	"fmt"
	"strings"
	"time"

	"github.com/fogbank-io/runtrack/pkg/loop"
)

func ParsePolicy(s string) (Policy, error) {
	typ, param, ok := strings.Cut(s, ":")
	switch typ {
	case "once":
		if ok {
			return nil, fmt.Errorf("once policy does not take parameters: %s", s)
		}
		return Once(), nil
	case "every":
		if !ok || param == "" {
			return nil, fmt.Errorf(`every policy needs an interval, as "every:INTERVAL": %s`, s)
		}
		interval, err := time.ParseDuration(param)
		if err != nil {
			return nil, fmt.Errorf(`failed to parse: %s as "every:INTERVAL": %w`, s, err)
		}
		return Every(interval), nil
	}
	return nil, fmt.Errorf("unknown policy name: %s (should be one of -- once|every:INTERVAL)", typ)
}

// Policy decides whether the trigger loop fires the pipeline again.
// How the policy behaves depends on the implementation of Next() method.
type Policy interface {
	Next(succeeded bool, err error) loop.Next
	String() string
}

// Trigger the pipeline once, then stop, carrying the error if any.
func Once() Policy {
	return once
}

type oncePolicy struct{}

func (oncePolicy) String() string {
	return "once"
}

func (oncePolicy) Next(succeeded bool, err error) loop.Next {
	return loop.Break(err)
}

var once = oncePolicy{} // singleton

// Trigger the pipeline again after interval, whatever the last run
// ended as. A scheduled pipeline does not stop for one bad day.
func Every(interval time.Duration) Policy {
	return every(interval)
}

type every time.Duration

func (e every) String() string {
	return fmt.Sprintf("every:%s", time.Duration(e).String())
}

func (e every) Next(succeeded bool, err error) loop.Next {
	return loop.Continue(time.Duration(e))
}

// add a provisory clause: in case of error, Break with that error.
func UntilError(p Policy) Policy {
	return untilError{base: p}
}

type untilError struct {
	base Policy
}

func (u untilError) String() string {
	return fmt.Sprintf("%s (until error)", u.base.String())
}

func (u untilError) Next(succeeded bool, err error) loop.Next {
	if err != nil {
		return loop.Break(err)
	}
	return u.base.Next(succeeded, err)
}
