// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package engine

import (
	"context"
	"fmt"
	"maps"

	"github.com/alan-mat/docqa/internal/api"
	"github.com/alan-mat/docqa/internal/llm"
)

type Executer interface {
	Execute(c Context, p *Params) *Response
}

type ExecuterFunc func(c Context, p *Params) *Response

func (f ExecuterFunc) Execute(c Context, p *Params) *Response {
	return f(c, p)
}

type Middleware func(Executer) Executer

// Module exposes named operators that can be placed in a [Chain].
type Module interface {
	Operator(name string) (Executer, error)
}

type ErrOperatorNotFound struct {
	ModuleName   string
	OperatorName string
}

func (e ErrOperatorNotFound) Error() string {
	return fmt.Sprintf("invalid operator '%s' for module '%s'", e.OperatorName, e.ModuleName)
}

type InvokeError struct {
	Cause error
}

func (e InvokeError) Error() string {
	return fmt.Sprintf("invoke failed: %v", e.Cause)
}

func (e InvokeError) Unwrap() error {
	return e.Cause
}

// Invoker calls executers one after another, threading the state
// returned by each call into the next one.
type Invoker struct {
	context    Context
	middleware []Middleware
}

func NewInvoker(context Context) *Invoker {
	return &Invoker{
		context: context,
	}
}

// Use registers middleware applied to every subsequent call.
// The first registered middleware is the outermost.
func (i *Invoker) Use(mw ...Middleware) {
	i.middleware = append(i.middleware, mw...)
}

func (i *Invoker) Call(e Executer, p *Params) error {
	for j := len(i.middleware) - 1; j >= 0; j-- {
		e = i.middleware[j](e)
	}

	if p == nil {
		p = DefaultParams()
	}

	resp := e.Execute(i.context, p)
	if resp == nil {
		return InvokeError{Cause: fmt.Errorf("executer returned nil response")}
	}
	if resp.Err != nil {
		return InvokeError{Cause: resp.Err}
	}

	i.context = i.context.WithState(resp.State)
	return nil
}

func (i *Invoker) State() State {
	return i.context.State()
}

func (i *Invoker) Context() Context {
	return i.context
}

type Context struct {
	ctx context.Context

	taskId     string
	sessionId  string
	collection string

	state State

	values map[string]any
}

func NewContext(
	ctx context.Context,
	taskId string,
	sessionId string,
	collection string,
	query Query,
) Context {
	return Context{
		ctx:        ctx,
		taskId:     taskId,
		sessionId:  sessionId,
		collection: collection,
		state:      NewState(query),
	}
}

func (c Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c Context) TaskId() string {
	return c.taskId
}

func (c Context) SessionID() string {
	return c.sessionId
}

func (c Context) Collection() string {
	return c.collection
}

func (c Context) State() State {
	return c.state
}

// Value returns request scoped data set with [Context.WithValues].
func (c Context) Value(key string) any {
	return c.values[key]
}

func (c Context) WithState(state State) Context {
	c.state = state
	return c
}

func (c Context) WithValues(values map[string]any) Context {
	newVals := make(map[string]any)
	maps.Copy(newVals, c.values)
	maps.Copy(newVals, values)

	c.values = newVals
	return c
}

// State holds data related to a chain execution
// throughout its entire lifecycle. Fields it contains
// are meant to be accessed by each Executer in a chain.
type State struct {
	Query Query

	Contents    GeneratedContents
	ContextDocs []*api.ScoredDocument
}

func NewState(initialQuery Query) State {
	state := State{}
	state.Query = initialQuery
	state.Contents = GeneratedContents{}

	return state
}

func (s *State) AddContents(contents *GeneratedContents) {
	s.Contents.Merge(contents)
}

func (s *State) AddContextDocs(docs ...*api.ScoredDocument) {
	if len(docs) == 0 {
		return
	}
	s.ContextDocs = append(s.ContextDocs, docs...)
}

// SetContextDocs replaces the context documents, e.g. after reranking.
func (s *State) SetContextDocs(docs []*api.ScoredDocument) {
	s.ContextDocs = docs
}

type GeneratedContents struct {
	Messages []llm.Message
}

func ContentsFromMessages(messages ...llm.Message) *GeneratedContents {
	contents := &GeneratedContents{Messages: messages}
	return contents
}

func (c *GeneratedContents) Merge(contents ...*GeneratedContents) {
	for _, content := range contents {
		c.Messages = append(c.Messages, content.Messages...)
	}
}

// Last returns the most recently generated message, if any.
func (c GeneratedContents) Last() (llm.Message, bool) {
	if len(c.Messages) == 0 {
		return llm.Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

type Query struct {
	Text string
}

func TextQuery(text string) Query {
	return Query{
		Text: text,
	}
}

// Params contain data limited in scope to the currently
// invoked executer only.
type Params struct {
	Step string
	Args Arguments
}

func (p *Params) SetArgument(key string, val any) {
	if p.Args == nil {
		p.Args = make(Arguments)
	}
	p.Args[key] = val
}

func DefaultParams() *Params {
	return &Params{
		Args: make(Arguments),
	}
}

type Arguments map[string]any

func GetTypedArgument[T any](args Arguments, name string) (T, bool) {
	arg, ok := args[name]
	if !ok {
		return *new(T), false
	}

	typedArg, ok := arg.(T)
	return typedArg, ok
}

func GetTypedArgumentWithDefault[T any](args Arguments, name string, defaultValue T) T {
	arg, ok := args[name]
	if !ok {
		return defaultValue
	}

	typedArg, ok := arg.(T)
	if !ok {
		return defaultValue
	}

	return typedArg
}

// Response contains the execution response from an [Executer].
type Response struct {
	// Err holds errors that may occur during execution.
	// If this is not-nil, the value of State may not be trusted.
	Err error

	// State contains the new state post-execution.
	// If Err is nil, this must hold a valid value.
	State State
}

func ErrorResponse(state State, err error) *Response {
	return &Response{
		Err:   err,
		State: state,
	}
}
