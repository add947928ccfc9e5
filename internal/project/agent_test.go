package project

import (
	"strings"
	"testing"
)

func agentService(kind, prompt string) Service {
	return Service{
		Name:             "helper",
		Restart:          RestartNever,
		Agent:            kind,
		Prompt:           prompt,
		AgentMode:        AgentModeOneshot,
		AgentPermissions: AgentPermissionsFull,
	}
}

func TestLaunchCommandPlainService(t *testing.T) {
	svc := Service{Name: "api", Command: "npm run api"}
	if got := LaunchCommand(svc, "myapp"); got != "npm run api" {
		t.Fatalf("command = %q", got)
	}
}

func TestLaunchCommandClaudeOneshot(t *testing.T) {
	cmd := LaunchCommand(agentService("claude", "Review code"), "myapp")
	if !strings.HasPrefix(cmd, "claude -p --dangerously-skip-permissions") {
		t.Fatalf("command = %q", cmd)
	}
	if !strings.Contains(cmd, "drift project 'myapp'") || !strings.Contains(cmd, "Review code") {
		t.Fatalf("prompt context missing: %q", cmd)
	}
	if !strings.Contains(cmd, "drift notify --type agent.completed") {
		t.Fatalf("notification instructions missing: %q", cmd)
	}
}

func TestLaunchCommandClaudeSafePermissions(t *testing.T) {
	svc := agentService("claude", "Review code")
	svc.AgentPermissions = AgentPermissionsSafe
	cmd := LaunchCommand(svc, "myapp")
	if !strings.Contains(cmd, "--allowedTools '"+safeTools+"'") {
		t.Fatalf("command = %q", cmd)
	}
	if strings.Contains(cmd, "dangerously-skip-permissions") {
		t.Fatalf("safe mode must not skip permissions: %q", cmd)
	}
}

func TestLaunchCommandClaudeInteractive(t *testing.T) {
	svc := agentService("claude", "Help me")
	svc.AgentMode = AgentModeInteractive
	cmd := LaunchCommand(svc, "myapp")
	if strings.HasPrefix(cmd, "claude -p") {
		t.Fatalf("interactive must not use print mode: %q", cmd)
	}
	if !strings.Contains(cmd, "--allowedTools '"+fullTools+"'") || !strings.Contains(cmd, "--system-prompt") {
		t.Fatalf("command = %q", cmd)
	}
}

func TestLaunchCommandCodex(t *testing.T) {
	cmd := LaunchCommand(agentService("codex", "Run tests"), "myapp")
	if !strings.HasPrefix(cmd, "codex exec -s danger-full-access") {
		t.Fatalf("command = %q", cmd)
	}

	svc := agentService("codex", "Fix bugs")
	svc.AgentModel = "o3"
	if cmd := LaunchCommand(svc, "myapp"); !strings.Contains(cmd, "-m o3") {
		t.Fatalf("model flag missing: %q", cmd)
	}

	svc.AgentMode = AgentModeInteractive
	if cmd := LaunchCommand(svc, "myapp"); strings.HasPrefix(cmd, "codex exec") {
		t.Fatalf("interactive codex must not use exec: %q", cmd)
	}
}

func TestLaunchCommandUnknownAgentKind(t *testing.T) {
	cmd := LaunchCommand(agentService("aider", "Fix the tests"), "myapp")
	if !strings.HasPrefix(cmd, "aider '") {
		t.Fatalf("command = %q", cmd)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's done")
	if got != `'it'\''s done'` {
		t.Fatalf("quoted = %q", got)
	}
}
