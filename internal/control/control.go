// Package control owns the consumer side of the event queue. A single
// goroutine polls on a cadence, processes one event at a time, and is the
// only writer to the store. Surfaces claimed by the dispatcher are
// released here, after the event that resolves them has been fully
// handled.
package control

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/batalabs/chatd/internal/bus"
	"github.com/batalabs/chatd/internal/config"
	"github.com/batalabs/chatd/internal/dispatch"
	"github.com/batalabs/chatd/internal/domain"
	"github.com/batalabs/chatd/internal/provider"
	"github.com/batalabs/chatd/internal/sandbox"
	"github.com/batalabs/chatd/internal/store"
)

// DefaultPollInterval is the queue polling cadence when preferences do
// not override it.
const DefaultPollInterval = 120 * time.Millisecond

// Controller processes queued events. The callback fields are invoked
// from the consumer goroutine; a nil callback is skipped.
type Controller struct {
	queue      *bus.Queue
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	executor   *sandbox.Executor
	log        *config.Logger

	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration

	OnReply       func(conversationID string, msg domain.Message)
	OnError       func(surface bus.Surface, err error)
	OnNotice      func(line string)
	OnModels      func(providerName string, models []string, preferredModel string)
	OnModelsError func(providerName string, err error)
	OnProcess     func(e bus.Event)
}

// New wires a controller over the shared queue. executor may be nil when
// the agent surface is unused.
func New(queue *bus.Queue, st *store.Store, d *dispatch.Dispatcher, executor *sandbox.Executor, log *config.Logger) *Controller {
	return &Controller{
		queue:      queue,
		store:      st,
		dispatcher: d,
		executor:   executor,
		log:        log,
	}
}

// Run polls the queue until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.HandleNext()
		}
	}
}

// HandleNext processes at most one queued event. It reports whether an
// event was handled.
func (c *Controller) HandleNext() bool {
	e, ok := c.queue.TryNext()
	if !ok {
		return false
	}
	c.handle(e)
	return true
}

func (c *Controller) handle(e bus.Event) {
	switch e.Kind {
	case bus.EventCompletionReply:
		c.handleReply(e)
	case bus.EventAgentReply:
		c.handleAgentReply(e)
	case bus.EventCompletionError, bus.EventAgentError:
		c.handleError(e)
	case bus.EventModelsLoaded:
		c.handleModels(e)
	case bus.EventModelsError:
		c.handleModelsError(e)
	case bus.EventProcessResult:
		if c.OnProcess != nil {
			c.OnProcess(e)
		}
	}
}

// ---------------------------------------------------------------------------
// Completion events
// ---------------------------------------------------------------------------

func (c *Controller) handleReply(e bus.Event) {
	defer c.dispatcher.MarkIdle(e.Surface)

	if !c.store.ConversationExists(e.ConversationID) {
		c.logf("discarding %s reply for deleted conversation %s", e.Surface, e.ConversationID)
		return
	}
	if err := c.store.AppendMessage(e.ConversationID, e.Message); err != nil {
		c.logf("storing reply: %v", err)
	}
	if c.OnReply != nil {
		c.OnReply(e.ConversationID, e.Message)
	}
}

// handleAgentReply scrubs the assistant text, executes any embedded file
// commands, and stores the operation summary in place of the raw command
// blocks. The scrubbed raw text survives in the message meta.
func (c *Controller) handleAgentReply(e bus.Event) {
	defer c.dispatcher.MarkIdle(e.Surface)

	if !c.store.ConversationExists(e.ConversationID) {
		c.logf("discarding agent reply for deleted conversation %s", e.ConversationID)
		return
	}

	cleaned := sandbox.FilterAttachmentPaths(e.Message.Content)
	msg := e.Message
	msg.Content = cleaned

	cmds := sandbox.ParseCommands(cleaned)
	if len(cmds) > 0 && c.executor != nil {
		results := c.executor.ExecuteAll(cmds)
		msg.Content = sandbox.SummarizeResults(cmds, results)
		msg.Meta.FullResponse = cleaned
		c.notice(firstLine(msg.Content, 100))
	} else {
		c.notice("Agent: " + firstLine(cleaned, 100))
	}

	if err := c.store.AppendMessage(e.ConversationID, msg); err != nil {
		c.logf("storing agent reply: %v", err)
	}
	if c.OnReply != nil {
		c.OnReply(e.ConversationID, msg)
	}
}

// handleError records the failure in the transcript as a system message,
// so the error survives in history like any other turn.
func (c *Controller) handleError(e bus.Event) {
	defer c.dispatcher.MarkIdle(e.Surface)
	c.logf("%s completion failed: %v", e.Surface, e.Err)
	if e.ConversationID != "" && c.store.ConversationExists(e.ConversationID) {
		msg := domain.Message{Role: "system", Content: fmt.Sprintf("Error: %v", e.Err)}
		if err := c.store.AppendMessage(e.ConversationID, msg); err != nil {
			c.logf("storing error message: %v", err)
		}
	}
	if c.OnError != nil {
		c.OnError(e.Surface, e.Err)
	}
}

// ---------------------------------------------------------------------------
// Model listing events
// ---------------------------------------------------------------------------

func (c *Controller) handleModels(e bus.Event) {
	models := e.Models
	if len(models) == 0 {
		models = provider.FallbackModels(e.Provider)
		if len(models) > 0 {
			c.logf("%s returned no models, using fallback list", e.Provider)
		}
	}
	if c.OnModels != nil {
		c.OnModels(e.Provider, models, e.PreferredModel)
	}
}

func (c *Controller) handleModelsError(e bus.Event) {
	c.logf("listing %s models: %v", e.Provider, e.Err)
	if c.OnModelsError != nil {
		c.OnModelsError(e.Provider, e.Err)
	}
	// A provider with local fallbacks stays usable offline.
	if fallback := provider.FallbackModels(e.Provider); len(fallback) > 0 && c.OnModels != nil {
		c.OnModels(e.Provider, fallback, e.PreferredModel)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Controller) notice(line string) {
	if c.OnNotice != nil {
		c.OnNotice(line)
	}
}

func (c *Controller) logf(format string, args ...any) {
	if c.log != nil {
		c.log.Printf(format, args...)
	}
}

// firstLine returns the first non-empty line of text, truncated to at
// most max bytes on a rune boundary.
func firstLine(text string, max int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > max {
			return truncateRunes(line, max) + "..."
		}
		return line
	}
	return ""
}

// truncateRunes cuts s to at most max bytes without splitting a rune.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
