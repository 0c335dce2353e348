package domain

// CommandDef describes a slash command available at the prompt.
type CommandDef struct {
	Name        string
	Usage       string
	Description string
	Group       string // display group for /help
}

// CommandDefs is the single source of truth for all slash commands.
var CommandDefs = []CommandDef{
	// Conversations
	{Name: "/new", Usage: "/new", Description: "start a new conversation", Group: "conversations"},
	{Name: "/list", Usage: "/list", Description: "list recent conversations", Group: "conversations"},
	{Name: "/open", Usage: "/open <id>", Description: "resume a conversation", Group: "conversations"},
	{Name: "/rename", Usage: "/rename <title>", Description: "rename the current conversation", Group: "conversations"},
	{Name: "/delete", Usage: "/delete <id>", Description: "delete a conversation", Group: "conversations"},
	// Models & config
	{Name: "/config", Usage: "/config [show|set <key> <value>|reset]", Description: "view or change settings", Group: "config"},
	{Name: "/models", Usage: "/models", Description: "list models for the current provider", Group: "config"},
	{Name: "/model", Usage: "/model [id]", Description: "show or set the model", Group: "config"},
	// Agent
	{Name: "/agent", Usage: "/agent", Description: "toggle agent mode (sandboxed file ops)", Group: "agent"},
	{Name: "/run", Usage: "/run <command>", Description: "run a shell command in the project root", Group: "agent"},
	// General
	{Name: "/help", Usage: "/help", Description: "show this help", Group: "general"},
	{Name: "/quit", Usage: "/quit", Description: "exit", Group: "general"},
}

// CommandGroups defines the display order and labels for help groups.
var CommandGroups = []struct {
	Key   string
	Label string
}{
	{"conversations", "Conversations"},
	{"config", "Models & config"},
	{"agent", "Agent"},
	{"general", "General"},
}
