package parser

import (
	"regexp"
	"strings"

	"agentloop/internal/agent/ports"
)

const (
	maxJoinedLines   = 5
	maxShellLineLen  = 200
	thoughtExcerpt   = 200
	defaultAnswerLen = 500
	fileWriteMaxStep = 2
	pathSearchWindow = 500
)

var (
	finishPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)TUGAS SELESAI[:\s]*(.*)`),
		regexp.MustCompile(`(?is)final answer\s*[:\-]\s*(.*)`),
		regexp.MustCompile(`(?is)\btask (?:is )?(?:now )?(?:complete|completed|finished|done)\b[.:!\s]*(.*)`),
	}

	codeBlockPattern = regexp.MustCompile("(?s)```([\\w+-]*)[ \\t]*\\n(.*?)```")

	commandPrefix = regexp.MustCompile(`^(sudo |apt |apt-get |npm |npx |pip |pip3 |mkdir |cd |ls |cat |echo |touch |cp |mv |rm |curl |wget |python |python3 |node |go |git |make )`)

	pathPatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)(?:file|save|create|write|named|called).*?[`\"']([/\\w._-]+\\.\\w+)[`\"']"),
		regexp.MustCompile("[`\"']([/\\w._-]+\\.\\w{1,5})[`\"']"),
		regexp.MustCompile(`(?i)(?:file|named|called|as)\s+([/\w._-]+\.\w{1,5})\b`),
	}

	searchPhrase = regexp.MustCompile(`(?i)\b(?:search(?: the web)? for|look up|google)\s+["']?([^"'\n.?!]+)`)

	searchIndicators = []string{"search", "find", "look up", "information about", "what is", "who is", "cari", "temukan", "apa itu"}
)

var shellLangs = map[string]bool{
	"": true, "bash": true, "sh": true, "shell": true, "console": true, "terminal": true, "zsh": true,
}

var defaultFilenames = map[string]string{
	"html": "index.html", "css": "style.css",
	"js": "script.js", "javascript": "script.js",
	"ts": "index.ts", "typescript": "index.ts", "tsx": "App.tsx", "jsx": "App.jsx",
	"python": "main.py", "py": "main.py",
	"go": "main.go", "rust": "main.rs", "rs": "main.rs",
	"java": "Main.java", "c": "main.c", "cpp": "main.cpp", "c++": "main.cpp",
	"rb": "main.rb", "ruby": "main.rb", "php": "index.php",
	"json": "data.json", "yaml": "config.yaml", "yml": "config.yaml",
	"markdown": "README.md", "md": "README.md", "txt": "notes.txt", "text": "notes.txt",
}

type codeBlock struct {
	lang string
	code string
}

// parseFallback recognizes actions in prose: completion phrases, shell code
// blocks, source code blocks that should become files, command-looking
// lines and search requests.
func parseFallback(input ports.ParseInput) (ports.Action, bool) {
	text := input.Response
	if strings.TrimSpace(text) == "" {
		return ports.Action{}, false
	}

	for _, pattern := range finishPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		answer := strings.TrimSpace(match[1])
		if answer == "" {
			answer = truncate(strings.TrimSpace(text), defaultAnswerLen)
		}
		return ports.Action{Thought: "The task is complete", Kind: ports.ActionFinish, Answer: answer, Stage: ports.StageFallback}, true
	}

	blocks := extractCodeBlocks(text)
	var shellBlocks, sourceBlocks []codeBlock
	for _, block := range blocks {
		if shellLangs[block.lang] {
			shellBlocks = append(shellBlocks, block)
		} else {
			sourceBlocks = append(sourceBlocks, block)
		}
	}
	thought := excerpt(text)

	for _, block := range shellBlocks {
		if command := joinCommand(block.code); command != "" {
			return terminalAction(thought, command), true
		}
	}

	if len(sourceBlocks) > 0 && input.Step <= fileWriteMaxStep {
		if action, ok := fileWriteAction(thought, text, sourceBlocks); ok {
			return action, true
		}
	}

	if commands := extractShellCommands(text); len(commands) > 0 {
		return terminalAction(thought, commands[0]), true
	}

	if len(sourceBlocks) > 0 {
		if action, ok := fileWriteAction(thought, text, sourceBlocks); ok {
			return action, true
		}
	}

	if match := searchPhrase.FindStringSubmatch(text); match != nil {
		if query := strings.TrimSpace(match[1]); query != "" {
			return searchAction("Searching for: "+query, query), true
		}
	}
	if input.Step == 1 && containsAny(strings.ToLower(input.Prompt), searchIndicators) {
		return searchAction("Searching for information about: "+input.Prompt, input.Prompt), true
	}
	return ports.Action{}, false
}

func extractCodeBlocks(text string) []codeBlock {
	matches := codeBlockPattern.FindAllStringSubmatch(text, -1)
	blocks := make([]codeBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, codeBlock{lang: strings.ToLower(m[1]), code: strings.TrimSpace(m[2])})
	}
	return blocks
}

// joinCommand collapses a short script into one && chain; longer scripts run
// only their first line so a single step stays observable.
func joinCommand(code string) string {
	var lines []string
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "$ ")
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	if len(lines) <= maxJoinedLines {
		return strings.Join(lines, " && ")
	}
	return lines[0]
}

func extractShellCommands(text string) []string {
	var commands []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "$ "), strings.HasPrefix(stripped, "> "):
			if cmd := strings.TrimSpace(stripped[2:]); cmd != "" {
				commands = append(commands, cmd)
			}
		case commandPrefix.MatchString(stripped):
			if len(stripped) < maxShellLineLen && !strings.HasSuffix(stripped, ":") {
				commands = append(commands, stripped)
			}
		}
	}
	return commands
}

func fileWriteAction(thought, text string, blocks []codeBlock) (ports.Action, bool) {
	for _, block := range blocks {
		if path := mentionedPath(text, block.code); path != "" {
			return writeAction(thought, path, block.code), true
		}
	}
	for _, block := range blocks {
		if name, ok := defaultFilenames[block.lang]; ok {
			return writeAction(thought, name, block.code), true
		}
	}
	return ports.Action{}, false
}

// mentionedPath looks for a filename in the prose just before the block.
func mentionedPath(text, code string) string {
	region := text
	if idx := strings.Index(text, code); idx >= 0 {
		region = text[:idx]
	}
	if len(region) > pathSearchWindow {
		region = region[len(region)-pathSearchWindow:]
	}
	for _, pattern := range pathPatterns {
		if match := pattern.FindStringSubmatch(region); match != nil {
			return match[1]
		}
	}
	return ""
}

func terminalAction(thought, command string) ports.Action {
	return ports.Action{
		Thought:  thought,
		Kind:     ports.ActionToolCall,
		ToolName: ports.ToolTerminal,
		Args:     ports.ObjectArgs(map[string]any{"command": command}),
		Stage:    ports.StageFallback,
	}
}

func writeAction(thought, path, content string) ports.Action {
	return ports.Action{
		Thought:  thought,
		Kind:     ports.ActionToolCall,
		ToolName: ports.ToolFileEditor,
		Args: ports.ObjectArgs(map[string]any{
			"operation": string(ports.FileWrite),
			"path":      path,
			"content":   content,
		}),
		Stage: ports.StageFallback,
	}
}

func searchAction(thought, query string) ports.Action {
	return ports.Action{
		Thought:  thought,
		Kind:     ports.ActionToolCall,
		ToolName: ports.ToolWebSearch,
		Args:     ports.ObjectArgs(map[string]any{"query": strings.TrimSpace(query)}),
		Stage:    ports.StageFallback,
	}
}

func excerpt(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	return truncate(flat, thoughtExcerpt)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
