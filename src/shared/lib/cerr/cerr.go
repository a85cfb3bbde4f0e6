// Package cerr attaches structured log fields to errors as they are wrapped,
// so the fields travel with the error until it is finally logged.
package cerr

import (
	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

type F = log.Fields

type Context struct {
	fields log.Fields
}

func Field(key string, value any) Context {
	return Context{}.Field(key, value)
}

func Fields(fields F) Context {
	return Context{}.Fields(fields)
}

func (c Context) Field(key string, value any) Context {
	return c.Fields(F{key: value})
}

func (c Context) Fields(fields F) Context {
	merged := make(log.Fields, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return Context{fields: merged}
}

func (c Context) Wrap(err error) WrapContext {
	return WrapContext{ctx: c, err: err}
}

func (c Context) Error(msg string) error {
	return &withFields{
		cause:  errors.NewWithDepth(1, msg),
		fields: c.fields,
	}
}

type WrapContext struct {
	ctx Context
	err error
}

func Wrap(err error) WrapContext {
	return Context{}.Wrap(err)
}

func (w WrapContext) Error(msg string) error {
	return &withFields{
		cause:  errors.WrapWithDepth(1, w.err, msg),
		fields: w.ctx.fields,
	}
}

func Error(msg string) error {
	return &withFields{cause: errors.NewWithDepth(1, msg)}
}

// CollectFields gathers the fields of every cerr layer in the chain. Outer
// layers win over inner ones for the same key.
func CollectFields(err error) log.Fields {
	collected := log.Fields{}
	for current := err; current != nil; current = errors.UnwrapOnce(current) {
		withFields, ok := current.(*withFields)
		if !ok {
			continue
		}

		for k, v := range withFields.fields {
			if _, exists := collected[k]; !exists {
				collected[k] = v
			}
		}
	}

	return collected
}

func Log(err error) {
	if err == nil {
		return
	}

	log.WithFields(CollectFields(err)).
		WithError(err).
		Error(err.Error())
}

type withFields struct {
	cause  error
	fields log.Fields
}

func (w *withFields) Error() string {
	return w.cause.Error()
}

func (w *withFields) Cause() error {
	return w.cause
}

func (w *withFields) Unwrap() error {
	return w.cause
}
