// Package responder produces persona replies and their simulated typing delays.
package responder

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/llm"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

// FallbackMessage is shown when no live reply could be produced.
const FallbackMessage = "api is not available"

// Source records where a reply's text came from.
type Source string

const (
	SourceLive         Source = "live"
	SourceFiltered     Source = "filtered"
	SourceFallback     Source = "fallback"
	SourceUnconfigured Source = "unconfigured"
	SourceGreeting     Source = "greeting"
)

// Request is the input to Respond. History holds the messages before Latest.
type Request struct {
	History []model.Message
	Persona model.Persona
	Latest  string
}

// Reply is a persona message plus how long the persona should appear to type it.
type Reply struct {
	Message     string
	TypingDelay time.Duration
	Source      Source
}

// Config tunes generation.
type Config struct {
	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
}

// Responder turns a conversation into the persona's next message. It never fails:
// every error path degrades to canned text.
type Responder struct {
	client llm.Client
	cfg    Config
	logger *logger.Logger
	tracer trace.Tracer

	mu   sync.Mutex
	rand func() float64
}

// Option configures a Responder.
type Option func(*Responder)

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(r *Responder) {
		r.rand = f
	}
}

// New creates a Responder. A nil client puts it in mock mode.
func New(client llm.Client, cfg Config, log *logger.Logger, opts ...Option) *Responder {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 12
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}

	r := &Responder{
		client: client,
		cfg:    cfg,
		logger: log.Named("responder"),
		tracer: otel.Tracer("github.com/realorai/session-service/internal/responder"),
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configured reports whether replies come from a live provider.
func (r *Responder) Configured() bool {
	return r.client != nil
}

// Respond produces the persona's reply to req.Latest.
func (r *Responder) Respond(ctx context.Context, req Request) Reply {
	ctx, span := r.tracer.Start(ctx, "responder.Respond", trace.WithAttributes(
		attribute.String("persona.id", req.Persona.ID),
		attribute.Int("history.len", len(req.History)),
	))
	defer span.End()

	start := time.Now()
	reply := r.respond(ctx, span, req)

	span.SetAttributes(attribute.String("responder.source", string(reply.Source)))
	metrics.RecordReply(r.providerName(), string(reply.Source), time.Since(start).Seconds())

	return reply
}

func (r *Responder) respond(ctx context.Context, span trace.Span, req Request) Reply {
	if r.client == nil {
		return r.fallback(SourceUnconfigured)
	}

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model:       r.cfg.Model,
		System:      SystemPrompt(req.Persona),
		Messages:    BuildHistory(req.History, req.Latest, r.cfg.HistoryWindow),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		r.logger.Warn("persona completion failed",
			zap.String("provider", r.client.Name()),
			zap.String("persona_id", req.Persona.ID),
			zap.Error(err),
		)
		return r.fallback(SourceFallback)
	}

	metrics.RecordTokens(resp.Model, resp.TokensIn, resp.TokensOut)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		r.logger.Warn("persona completion returned no text",
			zap.String("provider", r.client.Name()),
			zap.String("stop_reason", resp.StopReason),
		)
		return r.fallback(SourceFallback)
	}

	prev := lastAssistant(req.History)
	if IsBland(text) || sameText(text, prev) {
		r.logger.Debug("replacing generic persona reply", zap.String("reply", text))
		line := r.poolLine(prev)
		return Reply{
			Message:     line,
			TypingDelay: TypingDelay(line, r.jitter()),
			Source:      SourceFiltered,
		}
	}

	return Reply{
		Message:     text,
		TypingDelay: TypingDelay(text, r.jitter()),
		Source:      SourceLive,
	}
}

// Greet returns the persona's opening line.
func (r *Responder) Greet(ctx context.Context, persona model.Persona) Reply {
	_, span := r.tracer.Start(ctx, "responder.Greet", trace.WithAttributes(
		attribute.String("persona.id", persona.ID),
	))
	defer span.End()

	r.mu.Lock()
	idx := int(r.rand() * float64(len(greetings)))
	jitter := r.rand()
	r.mu.Unlock()

	metrics.ResponderRepliesTotal.WithLabelValues(string(SourceGreeting)).Inc()

	return Reply{
		Message:     Greeting(persona.Name, idx),
		TypingDelay: GreetingDelay(jitter),
		Source:      SourceGreeting,
	}
}

func (r *Responder) fallback(source Source) Reply {
	return Reply{
		Message:     FallbackMessage,
		TypingDelay: FallbackDelay(r.jitter()),
		Source:      source,
	}
}

func (r *Responder) jitter() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand()
}

func (r *Responder) poolLine(prev string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := int(r.rand() * float64(len(curatedLines)))
	for i := range curatedLines {
		line := curatedLines[(start+i)%len(curatedLines)]
		if !sameText(line, prev) {
			return line
		}
	}
	return curatedLines[start]
}

func (r *Responder) providerName() string {
	if r.client == nil {
		return string(llm.ProviderMock)
	}
	return r.client.Name()
}

func lastAssistant(history []model.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}
