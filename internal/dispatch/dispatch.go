// Package dispatch runs completion workers and enforces the
// one-in-flight-per-surface rule. Send either claims a surface and spawns
// a worker, or refuses without side effects. Workers publish their result
// to the event queue; the consumer loop releases the surface after it has
// processed the event, so a surface stays busy until its outcome is fully
// handled.
package dispatch

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/batalabs/chatd/internal/bus"
	"github.com/batalabs/chatd/internal/config"
	"github.com/batalabs/chatd/internal/domain"
	"github.com/batalabs/chatd/internal/provider"
)

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Request describes one completion to run.
type Request struct {
	Surface        bus.Surface
	ConversationID string
	Provider       string
	Model          string
	History        []domain.Message
	Temperature    float64
	MaxTokens      int
	Effort         int
}

// Dispatcher tracks per-surface busy state and spawns completion workers.
type Dispatcher struct {
	queue *bus.Queue

	mu   sync.Mutex
	busy map[bus.Surface]bool

	// Injection points for tests.
	lookupProvider func(name string) (provider.Provider, error)
	loadAPIKey     func(providerName string) (string, error)
}

// New creates a dispatcher publishing to queue. loadAPIKey resolves
// credentials at send time, so key changes take effect without restart.
func New(queue *bus.Queue, loadAPIKey func(providerName string) (string, error)) *Dispatcher {
	return &Dispatcher{
		queue:          queue,
		busy:           make(map[bus.Surface]bool),
		lookupProvider: provider.GetProvider,
		loadAPIKey:     loadAPIKey,
	}
}

// Busy reports whether a completion is in flight on the surface.
func (d *Dispatcher) Busy(surface bus.Surface) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy[surface]
}

// MarkIdle releases a surface. Called by the consumer loop once the
// surface's reply or error event has been processed.
func (d *Dispatcher) MarkIdle(surface bus.Surface) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy[surface] = false
}

func (d *Dispatcher) tryAcquire(surface bus.Surface) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[surface] {
		return false
	}
	d.busy[surface] = true
	return true
}

// Send starts a completion on the request's surface. It returns false,
// doing nothing, while a prior completion on the same surface is still
// unresolved. Credential and provider lookup failures fail fast: the
// error event is published before Send returns and no worker is spawned.
func (d *Dispatcher) Send(req Request) bool {
	if !d.tryAcquire(req.Surface) {
		return false
	}

	// Snapshot the history so later edits by the caller cannot race the
	// worker.
	history := make([]domain.Message, len(req.History))
	copy(history, req.History)

	apiKey, err := d.loadAPIKey(req.Provider)
	if err != nil {
		d.publishError(req, authError(req.Provider, err))
		return true
	}
	p, err := d.lookupProvider(req.Provider)
	if err != nil {
		d.publishError(req, err)
		return true
	}

	go d.complete(req, p, apiKey, history)
	return true
}

func (d *Dispatcher) complete(req Request, p provider.Provider, apiKey string, history []domain.Message) {
	temperature := EffortTemperature(req.Temperature, req.Effort)

	start := time.Now()
	text, usage, err := p.Complete(apiKey, req.Model, history, temperature, req.MaxTokens)
	if err != nil {
		d.publishError(req, err)
		return
	}
	elapsed := time.Since(start)

	d.queue.Publish(bus.Event{
		Kind:           replyKind(req.Surface),
		Surface:        req.Surface,
		ConversationID: req.ConversationID,
		Message: domain.Message{
			Role:    "assistant",
			Content: text,
			Meta:    buildMeta(req.Provider, req.Model, usage, text, elapsed),
		},
	})
}

func (d *Dispatcher) publishError(req Request, err error) {
	d.queue.Publish(bus.Event{
		Kind:           errorKind(req.Surface),
		Surface:        req.Surface,
		ConversationID: req.ConversationID,
		Err:            err,
	})
}

func replyKind(surface bus.Surface) bus.EventKind {
	if surface == bus.SurfaceAgent {
		return bus.EventAgentReply
	}
	return bus.EventCompletionReply
}

// authError wraps a credential resolution failure so consumers can
// distinguish it from transport and API errors.
func authError(providerName string, err error) error {
	return &provider.AuthError{
		Provider: providerName,
		EnvVar:   config.ProviderEnvVars[providerName],
		Err:      err,
	}
}

func errorKind(surface bus.Surface) bus.EventKind {
	if surface == bus.SurfaceAgent {
		return bus.EventAgentError
	}
	return bus.EventCompletionError
}

// ---------------------------------------------------------------------------
// Model listing
// ---------------------------------------------------------------------------

// RequestModels fetches the provider's model list in the background and
// publishes the outcome. Model listing is not gated by surface state, so
// it can run while a completion is in flight.
func (d *Dispatcher) RequestModels(providerName, preferredModel string) {
	go func() {
		apiKey, err := d.loadAPIKey(providerName)
		if err != nil {
			d.queue.Publish(bus.Event{Kind: bus.EventModelsError, Provider: providerName, Err: authError(providerName, err)})
			return
		}
		p, err := d.lookupProvider(providerName)
		if err != nil {
			d.queue.Publish(bus.Event{Kind: bus.EventModelsError, Provider: providerName, Err: err})
			return
		}
		models, err := p.ListModels(apiKey)
		if err != nil {
			d.queue.Publish(bus.Event{Kind: bus.EventModelsError, Provider: providerName, Err: err})
			return
		}
		d.queue.Publish(bus.Event{
			Kind:           bus.EventModelsLoaded,
			Provider:       providerName,
			Models:         models,
			PreferredModel: preferredModel,
		})
	}()
}

// ---------------------------------------------------------------------------
// Request shaping
// ---------------------------------------------------------------------------

// EffortTemperature applies the reasoning effort policy to a base
// temperature: low effort caps at 0.3, high effort raises to at least
// 0.8, standard leaves the base untouched.
func EffortTemperature(base float64, effort int) float64 {
	switch effort {
	case config.EffortLow:
		return math.Min(base, 0.3)
	case config.EffortHigh:
		return math.Max(base, 0.8)
	default:
		return base
	}
}

// WithSystemPrompt returns history with stale system messages removed and
// prompt injected at the front. Used on the agent surface, where the
// system prompt must reflect the current project root on every turn.
func WithSystemPrompt(history []domain.Message, prompt string) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	if strings.TrimSpace(prompt) != "" {
		out = append(out, domain.Message{Role: "system", Content: prompt})
	}
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// buildMeta assembles reply metadata. Provider-reported counts win;
// otherwise the count is estimated from the reply text and marked as such.
func buildMeta(providerName, model string, usage provider.Usage, text string, elapsed time.Duration) domain.MessageMeta {
	meta := domain.MessageMeta{
		Provider:         providerName,
		Model:            model,
		ResponseSeconds:  math.Round(elapsed.Seconds()*1000) / 1000,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	if n, ok := usage.ReportedCount(); ok {
		meta.TokenCount = n
		meta.TokenSource = domain.TokenSourceProvider
	} else {
		meta.TokenCount = domain.EstimateTokens(text)
		meta.TokenSource = domain.TokenSourceEstimated
	}
	return meta
}
