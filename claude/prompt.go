package claude

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is what the agent receives: User as the positional prompt and
// System appended to the CLI's own system prompt.
type Prompt struct {
	User   string
	System string
}

// PromptBuilder renders requests into prompts. ReposDir is where project
// repositories are cloned; it appears in the system preamble.
type PromptBuilder struct {
	ReposDir string
}

const systemPreambleFormat = `You are a software maintenance agent. Users are engineers and sales staff
asking questions about existing applications.

Your main tasks:
1. Read source code and explain how features work.
2. Estimate the effort needed to add features.
3. Investigate bugs across the code and the project's GitHub issues or Backlog tickets.

When answering:
- Include technical detail but keep explanations easy to follow.
- Show code snippets and file paths where they help.
- For effort estimates, list work items and hours in a table.
- Answer in Markdown.

Local repositories:
- Project repositories are cloned under %[1]s.
- A project's repository lives at %[1]s/{projectId}.
- Use the Read tool to read files from a local repository.
- A repository is cloned when %[1]s/{projectId}/.git exists.`

// SystemPrompt returns the fixed preamble for b.ReposDir.
func (b PromptBuilder) SystemPrompt() string {
	dir := b.ReposDir
	if dir == "" {
		dir = "repos"
	}
	return fmt.Sprintf(systemPreambleFormat, filepath.Clean(dir))
}

// Build renders the user prompt. With history, prior turns come first under
// a heading and the new message is the final "User:" turn. A repository URL
// is appended as a trailing hint.
func (b PromptBuilder) Build(message string, history []HistoryMessage, repositoryURL string) Prompt {
	user := message

	if len(history) > 0 {
		turns := make([]string, 0, len(history))
		for _, msg := range history {
			speaker := "Assistant"
			if msg.Role == RoleUser {
				speaker = "User"
			}
			turns = append(turns, speaker+": "+msg.Content)
		}
		user = "Conversation history:\n\n" + strings.Join(turns, "\n\n") + "\n\nUser: " + message
	}

	if repositoryURL != "" {
		user += "\n\nTarget repository: " + repositoryURL
	}

	return Prompt{User: user, System: b.SystemPrompt()}
}
