package project

import (
	"fmt"
	"strings"
)

const (
	fullTools = "Bash,Read,Edit,Write,Glob,Grep,WebFetch,WebSearch,NotebookEdit,Task"
	safeTools = "Read,Glob,Grep,WebFetch,WebSearch"
)

// LaunchCommand returns the shell command for a service. Plain services
// run their configured command; agents get a command assembled from the
// agent kind, interaction mode, and permission level, with the prompt
// wrapped in project context and completion-notification instructions.
func LaunchCommand(svc Service, projectName string) string {
	if !svc.IsAgent() {
		return svc.Command
	}

	rawPrompt := svc.Prompt
	if rawPrompt == "" {
		rawPrompt = "You are an AI assistant."
	}
	prompt := fmt.Sprintf(
		"You are working on drift project '%s'. %s\n\n"+
			"Use `drift notify --type agent.completed --title \"<summary>\"` when you finish significant work.\n"+
			"Use `drift notify --type agent.error --title \"<summary>\"` when you hit errors.",
		projectName, rawPrompt)
	escaped := shellQuote(prompt)
	full := svc.AgentPermissions == AgentPermissionsFull

	switch {
	case svc.Agent == "claude" && svc.AgentMode == AgentModeOneshot:
		cmd := "claude -p"
		if full {
			cmd += " --dangerously-skip-permissions"
		} else {
			cmd += fmt.Sprintf(" --allowedTools '%s'", safeTools)
		}
		if svc.AgentModel != "" {
			cmd += " --model " + svc.AgentModel
		}
		return cmd + " " + escaped

	case svc.Agent == "claude" && svc.AgentMode == AgentModeInteractive:
		tools := safeTools
		if full {
			tools = fullTools
		}
		cmd := fmt.Sprintf("claude --allowedTools '%s'", tools)
		if svc.AgentModel != "" {
			cmd += " --model " + svc.AgentModel
		}
		return cmd + " --system-prompt " + escaped

	case svc.Agent == "codex":
		cmd := "codex"
		if svc.AgentMode == AgentModeOneshot {
			cmd = "codex exec"
		}
		if full {
			cmd += " -s danger-full-access"
		}
		if svc.AgentModel != "" {
			cmd += " -m " + svc.AgentModel
		}
		return cmd + " " + escaped

	default:
		// Unknown agent kind: run it as a command taking the prompt.
		return svc.Agent + " " + escaped
	}
}

// shellQuote single-quotes a string for sh, escaping embedded quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
