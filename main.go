// chatd CLI entry point
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/batalabs/chatd/internal/bus"
	"github.com/batalabs/chatd/internal/config"
	"github.com/batalabs/chatd/internal/control"
	"github.com/batalabs/chatd/internal/dispatch"
	"github.com/batalabs/chatd/internal/domain"
	"github.com/batalabs/chatd/internal/proc"
	"github.com/batalabs/chatd/internal/provider"
	"github.com/batalabs/chatd/internal/sandbox"
	"github.com/batalabs/chatd/internal/store"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	welcomeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("183"))
	asstStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	metaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("222")).Bold(true)
)

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	providerFlag := flag.String("provider", "", "Provider name (groq, openai, anthropic, gemini, xai)")
	modelFlag := flag.String("model", "", "Model ID to use")
	agentFlag := flag.Bool("agent", false, "Start on the agent surface")
	rootFlag := flag.String("root", "", "Project root for agent file operations")
	flag.Parse()

	logger := config.NewLogger()
	defer logger.Close()

	if *versionFlag {
		fmt.Printf("chatd %s\n", version)
		return
	}

	prefs := config.LoadPreferences()
	if *providerFlag != "" {
		if err := prefs.Set("provider", *providerFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if *modelFlag != "" {
		prefs.Model = *modelFlag
	}
	if *rootFlag != "" {
		prefs.ProjectRoot = *rootFlag
	}

	pricing := config.LoadPricing()

	st, err := store.OpenStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	queue := bus.NewQueue()
	dispatcher := dispatch.New(queue, func(providerName string) (string, error) {
		return config.LoadProviderAPIKey(prefs, providerName)
	})

	projectRoot := prefs.ProjectRoot
	if projectRoot == "" {
		projectRoot = mustGetwd()
	}
	executor := &sandbox.Executor{Root: projectRoot}
	if prefs.OpenInEditor && prefs.EditorCommand != "" {
		executor.OpenInEditor = editorOpener(prefs.EditorCommand, logger)
	}

	r := &repl{
		prefs:      &prefs,
		store:      st,
		dispatcher: dispatcher,
		runner:     proc.NewRunner(queue, projectRoot),
		pricing:    pricing,
		logger:     logger,
		surface:    bus.SurfaceChat,
		convIDs:    make(map[bus.Surface]string),
		root:       projectRoot,
	}
	if *agentFlag {
		r.surface = bus.SurfaceAgent
	}

	ctrl := control.New(queue, st, dispatcher, executor, logger)
	ctrl.PollInterval = time.Duration(prefs.PollIntervalMs) * time.Millisecond
	ctrl.OnReply = r.printReply
	ctrl.OnError = r.printError
	ctrl.OnNotice = r.printNotice
	ctrl.OnModels = r.printModels
	ctrl.OnModelsError = func(providerName string, err error) {
		fmt.Println(errorStyle.Render(fmt.Sprintf("models: %v", err)))
	}
	ctrl.OnProcess = r.printProcessResult

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	r.ctx = ctx
	go ctrl.Run(ctx)

	fmt.Println(welcomeStyle.Render(fmt.Sprintf("chatd %s — %s", version, provider.Label(prefs.Provider))))
	fmt.Println(metaStyle.Render("Type /help for commands."))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(promptStyle.Render(r.promptLabel()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}
		r.handleLine(line)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// editorOpener spawns the configured editor command without waiting.
func editorOpener(command string, logger *config.Logger) func(path string) {
	return func(path string) {
		cmd := exec.Command("sh", "-c", command+" "+path)
		if err := cmd.Start(); err != nil {
			logger.Printf("opening editor: %v", err)
			return
		}
		go cmd.Wait()
	}
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

type repl struct {
	prefs      *config.Preferences
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	runner     *proc.Runner
	pricing    map[string]domain.ModelPricing
	logger     *config.Logger
	ctx        context.Context

	surface bus.Surface
	convIDs map[bus.Surface]string
	root    string
}

func (r *repl) promptLabel() string {
	if r.surface == bus.SurfaceAgent {
		return "agent> "
	}
	return "> "
}

func (r *repl) handleLine(line string) {
	if strings.HasPrefix(line, "/") {
		r.handleCommand(line)
		return
	}
	r.sendMessage(line)
}

func (r *repl) handleCommand(line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/help":
		r.printHelp()
	case "/config":
		out, err := config.ExecuteConfigAction(r.prefs, args)
		if err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
			return
		}
		fmt.Println(out)
	case "/models":
		if r.prefs.Provider == "" {
			fmt.Println(errorStyle.Render("no provider configured; /config set provider <name>"))
			return
		}
		fmt.Println(noticeStyle.Render("Loading models for " + provider.Label(r.prefs.Provider) + "..."))
		r.dispatcher.RequestModels(r.prefs.Provider, r.prefs.Model)
	case "/model":
		if len(args) == 0 {
			fmt.Println(metaStyle.Render("model: " + r.prefs.Model))
			return
		}
		r.prefs.Model = strings.Join(args, " ")
		if err := config.SavePreferences(*r.prefs); err != nil {
			fmt.Println(errorStyle.Render("error: " + err.Error()))
		}
	case "/agent":
		if r.surface == bus.SurfaceAgent {
			r.surface = bus.SurfaceChat
			fmt.Println(noticeStyle.Render("Back to chat."))
		} else {
			r.surface = bus.SurfaceAgent
			fmt.Println(noticeStyle.Render("Agent mode — file operations run inside " + r.root))
		}
	case "/new":
		r.convIDs[r.surface] = ""
		fmt.Println(noticeStyle.Render("Started a new conversation."))
	case "/list":
		r.listConversations()
	case "/open":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /open <conversation-id>"))
			return
		}
		r.openConversation(args[0])
	case "/rename":
		if len(args) == 0 {
			fmt.Println(errorStyle.Render("usage: /rename <title>"))
			return
		}
		r.renameConversation(strings.Join(args, " "))
	case "/delete":
		if len(args) != 1 {
			fmt.Println(errorStyle.Render("usage: /delete <conversation-id>"))
			return
		}
		r.deleteConversation(args[0])
	case "/run":
		if len(args) == 0 {
			fmt.Println(errorStyle.Render("usage: /run <shell command>"))
			return
		}
		command := strings.TrimSpace(strings.TrimPrefix(line, "/run"))
		fmt.Println(noticeStyle.Render("Running: " + command))
		r.runner.Start(r.ctx, command)
	default:
		fmt.Println(errorStyle.Render("unknown command: " + cmd + " (try /help)"))
	}
}

func (r *repl) printHelp() {
	for _, g := range domain.CommandGroups {
		fmt.Println(headingStyle.Render(g.Label + ":"))
		for _, c := range domain.CommandDefs {
			if c.Group != g.Key {
				continue
			}
			fmt.Printf("  %-40s %s\n", c.Usage, c.Description)
		}
	}
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

func (r *repl) sendMessage(text string) {
	if r.dispatcher.Busy(r.surface) {
		fmt.Println(noticeStyle.Render("Still waiting on the previous reply."))
		return
	}
	if r.prefs.Model == "" {
		fmt.Println(errorStyle.Render("no model configured; run /models and /model <id>"))
		return
	}

	convID, err := r.ensureConversation()
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	if err := r.store.AppendMessage(convID, domain.Message{Role: "user", Content: text}); err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	r.maybeTitle(convID, text)

	history, err := r.store.GetMessages(convID)
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}

	effort := r.prefs.ReasoningEffort
	if r.surface == bus.SurfaceAgent {
		effort = r.prefs.AgentReasoningEffort
		// Outbound agent history never carries temp attachment paths.
		for i := range history {
			history[i].Content = sandbox.FilterAttachmentPaths(history[i].Content)
		}
		history = dispatch.WithSystemPrompt(history, agentSystemPrompt(r.root))
	}

	sent := r.dispatcher.Send(dispatch.Request{
		Surface:        r.surface,
		ConversationID: convID,
		Provider:       r.prefs.Provider,
		Model:          r.prefs.Model,
		History:        history,
		Temperature:    r.prefs.Temperature,
		MaxTokens:      r.prefs.MaxTokens,
		Effort:         effort,
	})
	if !sent {
		fmt.Println(noticeStyle.Render("Still waiting on the previous reply."))
		return
	}
	fmt.Println(metaStyle.Render("..."))
}

func (r *repl) ensureConversation() (string, error) {
	if id := r.convIDs[r.surface]; id != "" && r.store.ConversationExists(id) {
		return id, nil
	}
	kind := domain.KindChat
	if r.surface == bus.SurfaceAgent {
		kind = domain.KindAgent
	}
	conv, err := r.store.CreateConversation(kind, "")
	if err != nil {
		return "", err
	}
	r.convIDs[r.surface] = conv.ID
	return conv.ID, nil
}

// maybeTitle names a fresh conversation after its first user message.
func (r *repl) maybeTitle(convID, text string) {
	conv, err := r.store.GetConversation(convID)
	if err != nil || conv.Title != "New conversation" {
		return
	}
	if err := r.store.RenameConversation(convID, domain.TitleFromContent(text)); err != nil {
		r.logger.Printf("renaming conversation: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Conversation commands
// ---------------------------------------------------------------------------

func (r *repl) currentKind() domain.ConversationKind {
	if r.surface == bus.SurfaceAgent {
		return domain.KindAgent
	}
	return domain.KindChat
}

func (r *repl) listConversations() {
	convs, err := r.store.ListConversations(r.currentKind(), 20)
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	if len(convs) == 0 {
		fmt.Println(metaStyle.Render("No conversations yet."))
		return
	}
	fmt.Println(headingStyle.Render("Recent conversations:"))
	for _, conv := range convs {
		marker := "  "
		if conv.ID == r.convIDs[r.surface] {
			marker = "* "
		}
		fmt.Printf("%s%s  %s  %s\n", marker, conv.ID[:8], conv.UpdatedAt.Format("2006-01-02 15:04"), conv.Title)
	}
}

func (r *repl) openConversation(prefix string) {
	convs, err := r.store.ListConversations(r.currentKind(), 0)
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	for _, conv := range convs {
		if conv.ID == prefix || strings.HasPrefix(conv.ID, prefix) {
			r.convIDs[r.surface] = conv.ID
			r.replayConversation(conv.ID)
			return
		}
	}
	fmt.Println(errorStyle.Render("no conversation matching " + prefix))
}

func (r *repl) replayConversation(id string) {
	conv, err := r.store.LoadConversation(id)
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	fmt.Println(headingStyle.Render(conv.Title))
	totalTokens := 0
	totalCost := 0.0
	for _, m := range conv.Messages {
		switch m.Role {
		case "user":
			fmt.Println(promptStyle.Render("> ") + m.Content)
		case "assistant":
			fmt.Println(asstStyle.Render(m.Content))
		}
		totalTokens += m.Meta.TokenCount
		prompt, completion := 0, 0
		if m.Meta.PromptTokens != nil {
			prompt = *m.Meta.PromptTokens
		}
		if m.Meta.CompletionTokens != nil {
			completion = *m.Meta.CompletionTokens
		}
		totalCost += config.EstimateCost(r.pricing, m.Meta.Model, prompt, completion)
	}
	summary := fmt.Sprintf("%d messages · %d tokens", len(conv.Messages), totalTokens)
	if totalCost > 0 {
		summary += fmt.Sprintf(" · $%.4f", totalCost)
	}
	fmt.Println(metaStyle.Render(summary))
}

func (r *repl) renameConversation(title string) {
	id := r.convIDs[r.surface]
	if id == "" {
		fmt.Println(errorStyle.Render("no open conversation"))
		return
	}
	if err := r.store.RenameConversation(id, title); err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
	}
}

func (r *repl) deleteConversation(prefix string) {
	convs, err := r.store.ListConversations(r.currentKind(), 0)
	if err != nil {
		fmt.Println(errorStyle.Render("error: " + err.Error()))
		return
	}
	for _, conv := range convs {
		if conv.ID == prefix || strings.HasPrefix(conv.ID, prefix) {
			if err := r.store.DeleteConversation(conv.ID); err != nil {
				fmt.Println(errorStyle.Render("error: " + err.Error()))
				return
			}
			if r.convIDs[r.surface] == conv.ID {
				r.convIDs[r.surface] = ""
			}
			fmt.Println(noticeStyle.Render("Deleted " + conv.Title))
			return
		}
	}
	fmt.Println(errorStyle.Render("no conversation matching " + prefix))
}

// ---------------------------------------------------------------------------
// Event output
// ---------------------------------------------------------------------------

func (r *repl) printReply(conversationID string, msg domain.Message) {
	fmt.Println(asstStyle.Render(msg.Content))
	fmt.Println(metaStyle.Render(r.metaLine(msg.Meta)))
}

func (r *repl) metaLine(meta domain.MessageMeta) string {
	parts := []string{meta.Model}
	source := meta.TokenSource
	if source == "" {
		source = domain.TokenSourceEstimated
	}
	parts = append(parts, fmt.Sprintf("%d tokens (%s)", meta.TokenCount, source))
	if meta.ResponseSeconds > 0 {
		parts = append(parts, fmt.Sprintf("%.3fs", meta.ResponseSeconds))
	}
	prompt, completion := 0, 0
	if meta.PromptTokens != nil {
		prompt = *meta.PromptTokens
	}
	if meta.CompletionTokens != nil {
		completion = *meta.CompletionTokens
	}
	if cost := config.EstimateCost(r.pricing, meta.Model, prompt, completion); cost > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", cost))
	}
	return strings.Join(parts, " · ")
}

func (r *repl) printError(surface bus.Surface, err error) {
	fmt.Println(errorStyle.Render(fmt.Sprintf("%s error: %v", surface, err)))
}

func (r *repl) printNotice(line string) {
	fmt.Println(noticeStyle.Render(line))
}

func (r *repl) printModels(providerName string, models []string, preferredModel string) {
	fmt.Println(headingStyle.Render(provider.Label(providerName) + " models:"))
	for _, m := range models {
		marker := "  "
		if m == preferredModel {
			marker = "* "
		}
		fmt.Println(marker + m)
	}
}

func (r *repl) printProcessResult(e bus.Event) {
	status := fmt.Sprintf("exit %d", e.ExitCode)
	if e.TimedOut {
		status = "timed out"
	}
	fmt.Println(metaStyle.Render(fmt.Sprintf("$ %s (%s)", e.Command, status)))
	if e.Stdout != "" {
		fmt.Println(e.Stdout)
	}
	if e.Stderr != "" {
		fmt.Println(errorStyle.Render(e.Stderr))
	}
}

// ---------------------------------------------------------------------------
// Agent prompt
// ---------------------------------------------------------------------------

func agentSystemPrompt(root string) string {
	return strings.TrimSpace(fmt.Sprintf(`You are a coding agent working inside the project at %s.

To operate on files, emit a fenced command block:

`+"```"+`agent
{"action": "read", "path": "relative/path.txt"}
`+"```"+`

Supported actions:
  read   — return a file's contents
  write  — create a file; set "overwrite": true to replace an existing one
  create — alias of write

Paths are resolved inside the project root; anything outside is refused.
Use one block per operation. For ordinary questions, answer in plain text
without command blocks.`, root))
}
