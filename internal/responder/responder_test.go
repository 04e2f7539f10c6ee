package responder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realorai/session-service/internal/llm"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/pkg/logger"
)

type fakeClient struct {
	content string
	err     error
	calls   int
	last    *llm.CompletionRequest
}

func (f *fakeClient) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "fake"}, nil
}

func (f *fakeClient) Name() string { return "fake" }

var maya = model.Persona{
	ID:     "p-1",
	Name:   "Maya",
	Age:    24,
	Bio:    "coffee, climbing, bad puns",
	Traits: []string{"playful", "sarcastic"},
}

func zero() float64 { return 0 }

func newTestResponder(c llm.Client) *Responder {
	return New(c, Config{HistoryWindow: 12}, logger.NewNop(), WithRand(zero))
}

func TestRespondWithoutClientReturnsFallback(t *testing.T) {
	r := New(nil, Config{}, logger.NewNop(), WithRand(zero))
	require.False(t, r.Configured())

	reply := r.Respond(context.Background(), Request{Persona: maya, Latest: "hello"})

	assert.Equal(t, FallbackMessage, reply.Message)
	assert.Equal(t, SourceUnconfigured, reply.Source)
	assert.Equal(t, 1500*time.Millisecond, reply.TypingDelay)
}

func TestRespondProviderErrorReturnsFallback(t *testing.T) {
	c := &fakeClient{err: errors.New("503 service unavailable")}
	r := newTestResponder(c)

	reply := r.Respond(context.Background(), Request{Persona: maya, Latest: "hello"})

	assert.Equal(t, 1, c.calls)
	assert.Equal(t, FallbackMessage, reply.Message)
	assert.Equal(t, SourceFallback, reply.Source)
}

type hangingClient struct{}

func (hangingClient) Complete(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingClient) Name() string { return "hanging" }

func TestRespondTimeoutReturnsFallback(t *testing.T) {
	r := newTestResponder(hangingClient{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	reply := r.Respond(ctx, Request{Persona: maya, Latest: "hello"})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, FallbackMessage, reply.Message)
	assert.Equal(t, SourceFallback, reply.Source)
}

func TestRespondEmptyTextReturnsFallback(t *testing.T) {
	r := newTestResponder(&fakeClient{content: "   "})

	reply := r.Respond(context.Background(), Request{Persona: maya, Latest: "hello"})

	assert.Equal(t, FallbackMessage, reply.Message)
	assert.Equal(t, SourceFallback, reply.Source)
}

func TestRespondLiveReply(t *testing.T) {
	c := &fakeClient{content: "  climbing gym or coffee first?  "}
	r := newTestResponder(c)

	history := []model.Message{
		{Role: model.RoleAssistant, Content: "hey, it's Maya"},
	}
	reply := r.Respond(context.Background(), Request{History: history, Persona: maya, Latest: "hi maya"})

	assert.Equal(t, SourceLive, reply.Source)
	assert.Equal(t, "climbing gym or coffee first?", reply.Message)
	assert.Equal(t, TypingDelay(reply.Message, 0), reply.TypingDelay)

	require.NotNil(t, c.last)
	assert.Contains(t, c.last.System, "Maya")
	assert.Contains(t, c.last.System, "playful, sarcastic")
	require.Len(t, c.last.Messages, 1, "leading greeting must be dropped")
	assert.Equal(t, "user", c.last.Messages[0].Role)
	assert.Equal(t, "hi maya", c.last.Messages[0].Content)
}

func TestRespondFiltersBlandReply(t *testing.T) {
	r := newTestResponder(&fakeClient{content: "Hey! What's up?"})

	reply := r.Respond(context.Background(), Request{Persona: maya, Latest: "hey"})

	assert.Equal(t, SourceFiltered, reply.Source)
	assert.Contains(t, curatedLines, reply.Message)
}

func TestRespondReplacesDuplicateOfPreviousReply(t *testing.T) {
	prev := curatedLines[0]
	r := newTestResponder(&fakeClient{content: strings.ToUpper(prev)})

	history := []model.Message{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: prev},
	}
	reply := r.Respond(context.Background(), Request{History: history, Persona: maya, Latest: "what?"})

	assert.Equal(t, SourceFiltered, reply.Source)
	assert.Contains(t, curatedLines, reply.Message)
	assert.NotEqual(t, prev, reply.Message)
}

func TestGreet(t *testing.T) {
	r := newTestResponder(nil)

	reply := r.Greet(context.Background(), maya)

	assert.Equal(t, SourceGreeting, reply.Source)
	assert.Equal(t, "hey, it's Maya", reply.Message)
	assert.Equal(t, 1500*time.Millisecond, reply.TypingDelay)
}

func TestTypingDelay(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		jitter float64
		want   time.Duration
	}{
		{"empty", "", 0, 1000 * time.Millisecond},
		{"short", "hey", 0, 1180 * time.Millisecond},
		{"with jitter", "hey", 0.5, 2180 * time.Millisecond},
		{"clamped", strings.Repeat("a", 100), 0, 5000 * time.Millisecond},
		{"counts runes", "héé", 0, 1180 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypingDelay(tt.text, tt.jitter))
		})
	}
}

func TestIsBland(t *testing.T) {
	bland := []string{
		"what's up",
		"Hey, what's up?",
		"how are you?",
		"Hi! How are you doing today?",
		"How's your day?",
		"How can I help you today?",
		"As an AI, I don't date",
	}
	for _, s := range bland {
		assert.True(t, IsBland(s), s)
	}

	fine := []string{
		"what's up with your profile pic lol",
		"ok real question. cats or dogs",
		"i'm good, just got back from climbing",
	}
	for _, s := range fine {
		assert.False(t, IsBland(s), s)
	}
}

func TestBuildHistory(t *testing.T) {
	var history []model.Message
	for i := 0; i < 20; i++ {
		role := model.RoleUser
		if i%2 == 0 {
			role = model.RoleAssistant
		}
		history = append(history, model.Message{Role: role, Content: string(rune('a' + i))})
	}

	got := BuildHistory(history, "latest", 12)

	// the 12-message window starts on an assistant turn, which is dropped
	require.Len(t, got, 12)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "j", got[0].Content)
	assert.Equal(t, "latest", got[len(got)-1].Content)
}

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Maya. you look like trouble", Greeting("Maya", 1))
	assert.Equal(t, "yo. Maya here", Greeting("Maya", 2))
	assert.Equal(t, "hey. you're kinda my type", Greeting("Maya", 3))
	assert.Equal(t, "hey, it's Maya", Greeting("Maya", 4))
}
