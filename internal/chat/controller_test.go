package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"atenex-cli/internal/api"
	"atenex-cli/internal/errs"
	"atenex-cli/internal/model"
)

type fakeQuery struct {
	mu       sync.Mutex
	askRes   api.AskResult
	askErr   error
	askCalls int
	askBlock chan struct{}
	history  []model.Message
	histErr  error
}

func (f *fakeQuery) Ask(_ context.Context, _, _ string, _ int) (api.AskResult, error) {
	f.mu.Lock()
	f.askCalls++
	block := f.askBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.askRes, f.askErr
}

func (f *fakeQuery) ChatMessages(_ context.Context, _ string, _, _ int) ([]model.Message, error) {
	return f.history, f.histErr
}

func (f *fakeQuery) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.askCalls
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(text string) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
}

func newTestController(t *testing.T, f *fakeQuery, n Notifier) *Controller {
	t.Helper()
	return NewController(f, "María", n, zaptest.NewLogger(t))
}

func lastMessage(t *testing.T, c *Controller) model.Message {
	t.Helper()
	msgs := c.Messages()
	if len(msgs) == 0 {
		t.Fatalf("no messages")
	}
	return msgs[len(msgs)-1]
}

func TestNewController_StartsWithWelcome(t *testing.T) {
	t.Parallel()

	c := newTestController(t, &fakeQuery{}, nil)
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != welcomeID || msgs[0].Role != model.RoleAssistant {
		t.Fatalf("want single welcome message, got %+v", msgs)
	}
	if len(c.Sources()) != 0 {
		t.Fatalf("welcome state must have no sources")
	}
}

func TestSend_GreetingAnsweredLocally(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{}
	c := newTestController(t, f, nil)

	if err := c.Send(context.Background(), "hola"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.calls() != 0 {
		t.Fatalf("a greeting must not hit the network")
	}
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("want user echo plus canned reply, got %d messages", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "hola" {
		t.Fatalf("user message mismatch: %+v", msgs[0])
	}
	if msgs[1].Content != greetingText {
		t.Fatalf("canned greeting mismatch: %q", msgs[1].Content)
	}
}

func TestSend_MetaQueryAnsweredLocally(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{}
	c := newTestController(t, f, nil)

	if err := c.Send(context.Background(), "¿Qué puedes hacer?"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.calls() != 0 {
		t.Fatalf("a meta query must not hit the network")
	}
	if got := lastMessage(t, c); got.Content != metaText {
		t.Fatalf("canned meta reply mismatch: %q", got.Content)
	}
}

func TestSend_RealQueryDispatchesOnce(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{askRes: api.AskResult{
		Answer: "El informe resume tres hallazgos.",
		ChatID: "chat-9",
		Sources: []model.Citation{
			{ID: "s1", DocumentID: "doc123", FileName: "informe.pdf", Score: 0.92, Tag: "Doc 1"},
		},
	}}
	c := newTestController(t, f, nil)

	if err := c.Send(context.Background(), "resume este documento"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("want exactly one network call, got %d", f.calls())
	}
	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("want user message plus one answer, got %d", len(msgs))
	}
	answer := msgs[1]
	if answer.Role != model.RoleAssistant || answer.Content != "El informe resume tres hallazgos." {
		t.Fatalf("answer mismatch: %+v", answer)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].DocumentID != "doc123" {
		t.Fatalf("sources not attached: %+v", answer.Sources)
	}
	if got := c.Sources(); len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("panel sources not updated: %+v", got)
	}
}

func TestSend_AdoptsServerAssignedChatID(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{askRes: api.AskResult{Answer: "ok", ChatID: "chat-42"}}
	c := newTestController(t, f, nil)

	if c.ChatID() != "" {
		t.Fatalf("fresh conversation must have no id")
	}
	if err := c.Send(context.Background(), "primera pregunta"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.ChatID() != "chat-42" {
		t.Fatalf("server-assigned id not adopted: %q", c.ChatID())
	}
}

func TestSend_WelcomeDroppedOnFirstMessage(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{askRes: api.AskResult{Answer: "ok"}}
	c := newTestController(t, f, nil)

	if err := c.Send(context.Background(), "pregunta real"); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, m := range c.Messages() {
		if m.ID == welcomeID {
			t.Fatalf("welcome message must be dropped once the conversation starts")
		}
	}
}

func TestSend_FailureAppendsErrorMessageAndNotifies(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{askErr: &api.Error{Status: 502, Message: "bad gateway"}}
	n := &recordingNotifier{}
	c := newTestController(t, f, n)

	if err := c.Send(context.Background(), "pregunta"); err == nil {
		t.Fatalf("want error")
	}
	got := lastMessage(t, c)
	if !got.IsError || got.Role != model.RoleAssistant {
		t.Fatalf("want synthetic error message, got %+v", got)
	}
	if len(n.texts) != 1 || n.texts[0] != "Error interno del servidor. Inténtalo de nuevo más tarde." {
		t.Fatalf("notification mismatch: %v", n.texts)
	}
}

func TestSendFailureText_DistinctCauses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{&api.Error{Status: 200, Message: "invalid JSON response received from server"}, "La respuesta del servidor no se pudo interpretar."},
		{&api.Error{Status: 500, Message: "panic"}, "Error interno del servidor. Inténtalo de nuevo más tarde."},
		{&api.Error{Status: 422, Message: "body.query: field required"}, "body.query: field required"},
		{errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		if got := sendFailureText(tc.err); got != tc.want {
			t.Fatalf("sendFailureText(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestSend_SecondSendWhileOutstandingIsRejected(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	f := &fakeQuery{askRes: api.AskResult{Answer: "ok"}, askBlock: block}
	c := newTestController(t, f, nil)

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "primera") }()
	for !c.Sending() {
		time.Sleep(time.Millisecond)
	}

	if err := c.Send(context.Background(), "segunda"); !errors.Is(err, errs.ErrBusy) {
		t.Fatalf("overlapping send must fail with ErrBusy, got %v", err)
	}
	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("want one network call, got %d", f.calls())
	}
}

func TestSend_EmptyInputRejected(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{}
	c := newTestController(t, f, nil)
	if err := c.Send(context.Background(), "   "); err == nil {
		t.Fatalf("want error on empty input")
	}
	if len(c.Messages()) != 1 {
		t.Fatalf("empty input must not touch the history")
	}
}

func TestLoad_HistorySortedAndSourcesFromLatest(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeQuery{history: []model.Message{
		{ID: "m3", Role: model.RoleAssistant, Content: "tercera", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m1", Role: model.RoleUser, Content: "primera", CreatedAt: base},
		{ID: "m2", Role: model.RoleAssistant, Content: "segunda", CreatedAt: base.Add(time.Minute),
			Sources: []model.Citation{{ID: "s1", DocumentID: "doc123", Tag: "Doc 1"}}},
	}}
	c := newTestController(t, f, nil)

	if err := c.Load(context.Background(), "chat-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := c.Messages()
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" || msgs[2].ID != "m3" {
		t.Fatalf("history not sorted by creation time: %+v", msgs)
	}
	// m2 is the most recent message carrying sources, even though m3 is newer
	if got := c.Sources(); len(got) != 1 || got[0].DocumentID != "doc123" {
		t.Fatalf("sources must come from the latest message that has any: %+v", got)
	}
	if c.ChatID() != "chat-1" {
		t.Fatalf("chat id not adopted: %q", c.ChatID())
	}
}

func TestLoad_EmptyHistoryFallsBackToWelcome(t *testing.T) {
	t.Parallel()

	c := newTestController(t, &fakeQuery{}, nil)
	if err := c.Load(context.Background(), "chat-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != welcomeID {
		t.Fatalf("empty history must show the welcome message, got %+v", msgs)
	}
}

func TestLoad_FailureRestoresWelcome(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{histErr: errors.New("gateway down")}
	c := newTestController(t, f, nil)

	if err := c.Load(context.Background(), "chat-1"); err == nil {
		t.Fatalf("want error")
	}
	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != welcomeID {
		t.Fatalf("failed load must restore the welcome state, got %+v", msgs)
	}
}

func TestLoad_NoIDStartsFresh(t *testing.T) {
	t.Parallel()

	f := &fakeQuery{askRes: api.AskResult{Answer: "ok", ChatID: "chat-1", Sources: []model.Citation{{ID: "s"}}}}
	c := newTestController(t, f, nil)
	if err := c.Send(context.Background(), "pregunta"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := c.Load(context.Background(), ""); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ChatID() != "" || len(c.Sources()) != 0 {
		t.Fatalf("fresh load must clear id and sources")
	}
	if msgs := c.Messages(); len(msgs) != 1 || msgs[0].ID != welcomeID {
		t.Fatalf("fresh load must show only the welcome message")
	}
}
