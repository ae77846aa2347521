package query

import "github.com/alibaba/proxima-sub000/internal/errcode"

// Query is the four-phase protocol every request type implements:
// validate -> prepare -> evaluate -> finalize. Any non-nil error from
// validate/prepare/evaluate short-circuits straight to finalize, which
// always runs and must be side-effect-free.
type Query interface {
	Validate(c *Context) error
	Prepare(c *Context) error
	Evaluate(c *Context) error
	Finalize(c *Context) error
}

// newQuery is the factory keyed by request kind.
func newQuery(t Type) Query {
	switch t {
	case TypeKNN:
		return &knnQuery{}
	case TypeEqual:
		return &equalQuery{}
	default:
		return noopQuery{}
	}
}

// noopQuery is the UNDEFINED query kind: it fails every phase.
type noopQuery struct{}

func (noopQuery) Validate(*Context) error { return errcode.New(errcode.InvalidQuery, "undefined query type") }
func (noopQuery) Prepare(*Context) error  { return errcode.New(errcode.InvalidQuery, "undefined query type") }
func (noopQuery) Evaluate(*Context) error { return errcode.New(errcode.InvalidQuery, "undefined query type") }
func (noopQuery) Finalize(*Context) error { return nil }
