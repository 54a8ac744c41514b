// Package coretest provides in-memory collaborators for tests of the core.
package coretest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
)

var ErrClosed = errors.New("connection closed")

// Conn is a SignalConnection that keeps every frame it is given.
type Conn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// SendErr, when set, is returned by TrySend instead of queueing.
	SendErr error
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages decodes every queued frame as a JSON object.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// IDs returns the "id" field of every queued message.
func (c *Conn) IDs() []string {
	var out []string
	for _, m := range c.Messages() {
		id, _ := m["id"].(string)
		out = append(out, id)
	}
	return out
}

func NewClient(id domain.ClientID) (core.Client, *Conn) {
	conn := &Conn{}
	return core.NewClient(id, conn), conn
}

// Pipeline records every call made on it.
type Pipeline struct {
	id string

	mu         sync.Mutex
	tags       map[string]string
	candidates []domain.Candidate
	releases   int
	recorded   string
	playedFrom core.Pipeline
	events     core.PipelineEvents

	// Answer is returned by Record and Play.
	Answer    string
	RecordErr error
	PlayErr   error
	// Gate, when set, blocks Record and Play until it is closed.
	Gate chan struct{}
}

func NewPipeline(id string) *Pipeline {
	return &Pipeline{id: id, tags: make(map[string]string), Answer: "answer-" + id}
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) AddTag(tx core.Transaction, key, value string) error {
	if tx == nil {
		return errors.New("nil transaction")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags[key] = value
	return nil
}

func (p *Pipeline) Record(ctx context.Context, offer string, ev core.PipelineEvents) (string, error) {
	p.wait(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RecordErr != nil {
		return "", p.RecordErr
	}
	if p.releases > 0 {
		return "", fmt.Errorf("pipeline %s released", p.id)
	}
	p.recorded = offer
	p.events = ev
	return p.Answer, nil
}

func (p *Pipeline) Play(ctx context.Context, source core.Pipeline, offer string, ev core.PipelineEvents) (string, error) {
	p.wait(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PlayErr != nil {
		return "", p.PlayErr
	}
	if p.releases > 0 {
		return "", fmt.Errorf("pipeline %s released", p.id)
	}
	p.playedFrom = source
	p.events = ev
	return p.Answer, nil
}

func (p *Pipeline) AddICECandidate(c domain.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *Pipeline) Release(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	return nil
}

func (p *Pipeline) wait(ctx context.Context) {
	if p.Gate == nil {
		return
	}
	select {
	case <-p.Gate:
	case <-ctx.Done():
	}
}

func (p *Pipeline) Tags() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.tags))
	for k, v := range p.tags {
		out[k] = v
	}
	return out
}

func (p *Pipeline) Candidates() []domain.Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Candidate(nil), p.candidates...)
}

func (p *Pipeline) Releases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.releases
}

func (p *Pipeline) RecordedOffer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recorded
}

func (p *Pipeline) PlayedFrom() core.Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playedFrom
}

// Events returns the callbacks given to the last Record or Play call.
func (p *Pipeline) Events() core.PipelineEvents {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Engine hands out Pipelines. Failure fields make the matching step fail.
type Engine struct {
	KuidValue string
	BeginErr  error
	CreateErr error
	CommitErr error

	mu        sync.Mutex
	seq       int
	created   []*Pipeline
	committed []*Pipeline
}

func NewEngine(kuid string) *Engine {
	return &Engine{KuidValue: kuid}
}

func (e *Engine) Kuid() string { return e.KuidValue }

func (e *Engine) BeginTransaction(context.Context) (core.Transaction, error) {
	if e.BeginErr != nil {
		return nil, e.BeginErr
	}
	return &Tx{engine: e}, nil
}

func (e *Engine) CreatePipeline(_ context.Context, tx core.Transaction) (core.Pipeline, error) {
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}
	t, ok := tx.(*Tx)
	if !ok {
		return nil, errors.New("foreign transaction")
	}
	e.mu.Lock()
	e.seq++
	p := NewPipeline(fmt.Sprintf("pipe-%d", e.seq))
	e.created = append(e.created, p)
	e.mu.Unlock()
	t.staged = append(t.staged, p)
	return p, nil
}

// Created returns every pipeline handed out, committed or not.
func (e *Engine) Created() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pipeline(nil), e.created...)
}

func (e *Engine) Committed() []*Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pipeline(nil), e.committed...)
}

type Tx struct {
	engine *Engine
	staged []*Pipeline
	done   bool
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return errors.New("transaction finished")
	}
	t.done = true
	if t.engine.CommitErr != nil {
		return t.engine.CommitErr
	}
	t.engine.mu.Lock()
	t.engine.committed = append(t.engine.committed, t.staged...)
	t.engine.mu.Unlock()
	return nil
}

func (t *Tx) Rollback() {
	t.done = true
}
