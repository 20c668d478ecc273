package pipeline

import (
	"errors"
	"fmt"

	"mcp_blog_generator/agent"
	"mcp_blog_generator/filestore"
	"mcp_blog_generator/generator"
)

// Kind tells the presentation layer how a failure should be reported.
type Kind int

const (
	// KindUpstream covers model provider, tool server and network failures.
	KindUpstream Kind = iota
	// KindConfig covers missing credentials and malformed configuration.
	KindConfig
	// KindNotFound is a missing artifact.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	default:
		return "upstream"
	}
}

// Error is a failed pipeline step.
type Error struct {
	Kind  Kind
	Step  string
	Topic string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps the sentinel errors of the collaborating packages to a Kind.
// Anything unrecognized is an upstream failure.
func Classify(err error) Kind {
	var perr *Error
	switch {
	case errors.As(err, &perr):
		return perr.Kind
	case errors.Is(err, agent.ErrNotConfigured),
		errors.Is(err, agent.ErrToolConfig),
		errors.Is(err, generator.ErrNotConfigured):
		return KindConfig
	case errors.Is(err, filestore.ErrNotFound):
		return KindNotFound
	default:
		return KindUpstream
	}
}

func stepError(step, topic string, err error) *Error {
	return &Error{Kind: Classify(err), Step: step, Topic: topic, Err: err}
}
