package rag

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hyperjump/docgenius/internal/llm"
	"github.com/hyperjump/docgenius/internal/models"
)

// Answer is the model's reply together with what it was given.
type Answer struct {
	Text    string                 `json:"answer"`
	Prompt  string                 `json:"-"`
	Context models.RetrievalResult `json:"context"`
	Sources []string               `json:"sources"`
}

// Orchestrator turns a question into a grounded answer: retrieve, build prompt, generate.
type Orchestrator struct {
	retriever       *Retriever
	generator       llm.Generator
	maxContextChars int
	logger          *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets a logger.
func WithOrchestratorLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator. maxContextChars of 0 means unbounded.
func NewOrchestrator(retriever *Retriever, generator llm.Generator, maxContextChars int, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		retriever:       retriever,
		generator:       generator,
		maxContextChars: maxContextChars,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retriever returns the orchestrator's retriever.
func (o *Orchestrator) Retriever() *Retriever { return o.retriever }

// Answer retrieves the default top-K chunks for query and asks the generator once.
func (o *Orchestrator) Answer(ctx context.Context, query string) (*Answer, error) {
	return o.AnswerK(ctx, query, o.retriever.TopK())
}

// AnswerK is Answer with an explicit k. The generator's response is returned unchanged.
func (o *Orchestrator) AnswerK(ctx context.Context, query string, k int) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "rag.Answer")
	defer span.End()

	res, err := o.retriever.Retrieve(ctx, query, k)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	contextText, used := FitContext(res, o.maxContextChars)
	prompt := BuildPrompt(contextText, query)

	start := time.Now()
	text, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		err = llm.Wrap(o.generator.Name(), err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.logger.Debug("answer generated",
		zap.String("generator", o.generator.Name()),
		zap.Int("retrieved", len(res)),
		zap.Int("chunks", len(used)),
		zap.Duration("took", time.Since(start)))
	span.SetAttributes(attribute.Int("docgenius.chunks", len(used)))

	return &Answer{Text: text, Prompt: prompt, Context: used, Sources: used.Sources()}, nil
}
