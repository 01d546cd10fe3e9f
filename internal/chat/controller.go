// Package chat owns one conversation: loading its remote history, the send
// pipeline with local intent short-circuits, and the citation list backing
// the sources panel.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"atenex-cli/internal/api"
	"atenex-cli/internal/errs"
	"atenex-cli/internal/model"
)

// QueryAPI is the slice of the gateway client the controller depends on.
type QueryAPI interface {
	Ask(ctx context.Context, query, chatID string, topK int) (api.AskResult, error)
	ChatMessages(ctx context.Context, chatID string, limit, offset int) ([]model.Message, error)
}

// Notifier raises a transient user-facing notice outside the message list.
type Notifier interface {
	Notify(text string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(string)

func (f NotifierFunc) Notify(text string) { f(text) }

const (
	historyPageSize = 100
	welcomeID       = "initial-welcome"
)

// Controller manages one conversation's state. Message history is append-only;
// a message is never mutated after creation. Sends are serialized: a second
// send while one is outstanding fails with ErrBusy instead of racing.
type Controller struct {
	api    QueryAPI
	log    *zap.Logger
	notify Notifier
	author string

	mu       sync.Mutex
	chatID   string
	messages []model.Message
	sources  []model.Citation
	sending  bool
	seq      int
}

// NewController builds a controller starting from the welcome state. author
// is the display name attached to outgoing user messages.
func NewController(q QueryAPI, author string, notify Notifier, log *zap.Logger) *Controller {
	if notify == nil {
		notify = NotifierFunc(func(string) {})
	}
	c := &Controller{api: q, log: log, notify: notify, author: author}
	c.messages = []model.Message{c.welcome()}
	return c
}

func (c *Controller) welcome() model.Message {
	return model.Message{
		ID:        welcomeID,
		Role:      model.RoleAssistant,
		Content:   welcomeText,
		CreatedAt: time.Now(),
	}
}

// nextID mints a client-side message id. Caller holds c.mu.
func (c *Controller) nextID(kind string) string {
	c.seq++
	return fmt.Sprintf("client-%s-%d", kind, c.seq)
}

// Load switches the controller to a conversation. An empty id starts a fresh
// conversation from the welcome message. With an id, the full history is
// fetched and the current sources become those of the most recent message
// that has any. On a fetch failure the welcome state is restored and the
// error returned for inline display.
func (c *Controller) Load(ctx context.Context, chatID string) error {
	c.mu.Lock()
	c.chatID = chatID
	c.mu.Unlock()

	if chatID == "" {
		c.mu.Lock()
		c.messages = []model.Message{c.welcome()}
		c.sources = nil
		c.mu.Unlock()
		return nil
	}

	msgs, err := c.api.ChatMessages(ctx, chatID, historyPageSize, 0)
	if err != nil {
		c.log.Warn("history load failed", zap.String("chat_id", chatID), zap.Error(err))
		c.mu.Lock()
		c.messages = []model.Message{c.welcome()}
		c.sources = nil
		c.mu.Unlock()
		return fmt.Errorf("load history: %w", err)
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

	var sources []model.Citation
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].Sources) > 0 {
			sources = msgs[i].Sources
			break
		}
	}
	if len(msgs) == 0 {
		msgs = []model.Message{c.welcome()}
	}

	c.mu.Lock()
	c.messages = msgs
	c.sources = sources
	c.mu.Unlock()
	return nil
}

// Send appends the user's message and produces the assistant's reply. Input
// matching a local intent rule is answered without any network call. On a
// failed request a single synthetic error message is appended to the history
// and a notification raised; the error never reaches the render path.
func (c *Controller) Send(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" {
		return errors.New("cannot send an empty message")
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return errs.ErrBusy
	}
	c.dropWelcomeLocked()
	c.messages = append(c.messages, model.Message{
		ID:            c.nextID("user"),
		Role:          model.RoleUser,
		Content:       text,
		CreatedAt:     time.Now(),
		AuthorDisplay: c.author,
	})

	if canned, ok := localAnswer(text); ok {
		c.messages = append(c.messages, model.Message{
			ID:        c.nextID("assistant"),
			Role:      model.RoleAssistant,
			Content:   canned,
			CreatedAt: time.Now(),
		})
		c.mu.Unlock()
		return nil
	}

	c.sending = true
	chatID := c.chatID
	c.mu.Unlock()

	res, err := c.api.Ask(ctx, text, chatID, 0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.messages = append(c.messages, model.Message{
			ID:        c.nextID("error"),
			Role:      model.RoleAssistant,
			Content:   "Error al procesar tu solicitud.",
			IsError:   true,
			CreatedAt: time.Now(),
		})
		c.notify.Notify(sendFailureText(err))
		return err
	}

	c.messages = append(c.messages, model.Message{
		ID:        c.nextID("assistant"),
		Role:      model.RoleAssistant,
		Content:   res.Answer,
		Sources:   res.Sources,
		CreatedAt: time.Now(),
	})
	c.sources = res.Sources
	// a brand-new conversation adopts the server-assigned id
	if chatID == "" && res.ChatID != "" {
		c.chatID = res.ChatID
		c.log.Info("conversation created", zap.String("chat_id", res.ChatID))
	}
	return nil
}

func (c *Controller) dropWelcomeLocked() {
	for i, m := range c.messages {
		if m.ID == welcomeID {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// sendFailureText maps a send failure to the user-facing notification. A
// body that could not be interpreted and an internal server error each get
// their own wording; everything else passes the server's message through.
func sendFailureText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status >= 200 && apiErr.Status < 300:
			return "La respuesta del servidor no se pudo interpretar."
		case apiErr.Status >= 500:
			return "Error interno del servidor. Inténtalo de nuevo más tarde."
		case apiErr.Message != "":
			return apiErr.Message
		}
	}
	return err.Error()
}

// ChatID returns the active conversation id, empty for a new conversation.
func (c *Controller) ChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatID
}

// Messages returns a copy of the visible history in order.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Sources returns the citations backing the sources panel: those of the
// latest answer, or of the most recent history message that had any.
func (c *Controller) Sources() []model.Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Citation, len(c.sources))
	copy(out, c.sources)
	return out
}

// Sending reports whether a query is outstanding.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}
