package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"agentloop/internal/agent/ports"
)

var (
	queryKeys     = []string{"query", "q", "search", "search_query", "keywords", "topic"}
	commandKeys   = []string{"command", "cmd", "script", "bash", "shell", "code"}
	operationKeys = []string{"operation", "action", "mode", "op"}
	pathKeys      = []string{"path", "file", "filename", "file_path", "filepath", "file_name", "target"}
	contentKeys   = []string{"content", "text", "data", "body", "contents"}
	textKeys      = []string{"raw", "input", "value", "arg", "argument"}
	wrapperKeys   = []string{"args", "arguments", "action_input", "parameters", "params"}
)

// Normalize coerces a raw argument payload into the canonical record of the
// named tool. It accepts a structured object, a string holding a JSON object
// (repaired when slightly malformed) or positional text.
func Normalize(toolName string, raw ports.RawArgs) (ports.ToolArgs, error) {
	obj, text := unpack(raw)

	switch toolName {
	case ports.ToolWebSearch:
		query := firstString(obj, queryKeys)
		if query == "" {
			query = firstString(obj, textKeys)
		}
		if query == "" {
			query = unquote(text)
		}
		if query == "" {
			return nil, fmt.Errorf("%w: web_search requires a query", ErrInvalidArguments)
		}
		return ports.WebSearchArgs{Query: query}, nil

	case ports.ToolTerminal:
		command := firstString(obj, commandKeys)
		if command == "" {
			command = firstString(obj, textKeys)
		}
		if command == "" {
			command = stripFence(text)
		}
		if command == "" {
			return nil, fmt.Errorf("%w: terminal requires a command", ErrInvalidArguments)
		}
		return ports.TerminalArgs{Command: command}, nil

	case ports.ToolFileEditor:
		return normalizeFileEditor(obj, text)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolName)
	}
}

func normalizeFileEditor(obj map[string]any, text string) (ports.ToolArgs, error) {
	args := ports.FileEditorArgs{}
	opRaw := firstString(obj, operationKeys)
	args.Path = firstString(obj, pathKeys)
	content, hasContent := lookupString(obj, contentKeys)
	args.Content = content

	if obj == nil || (args.Path == "" && opRaw == "" && !hasContent) {
		positional := firstString(obj, textKeys)
		if positional == "" {
			positional = text
		}
		opRaw, args.Path, args.Content, hasContent = splitPositional(positional)
	}

	if args.Path == "" {
		return nil, fmt.Errorf("%w: file_editor requires a path", ErrInvalidArguments)
	}

	if opRaw == "" {
		if hasContent {
			args.Operation = ports.FileWrite
		} else {
			args.Operation = ports.FileRead
		}
		return args, nil
	}
	op, ok := parseOperation(opRaw)
	if !ok {
		return nil, fmt.Errorf("%w: unknown file_editor operation %q (use read, write or append)", ErrInvalidArguments, opRaw)
	}
	args.Operation = op
	return args, nil
}

func parseOperation(raw string) (ports.FileOperation, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "read", "view", "cat", "open", "show":
		return ports.FileRead, true
	case "write", "create", "overwrite", "save", "put":
		return ports.FileWrite, true
	case "append", "add":
		return ports.FileAppend, true
	}
	return "", false
}

// splitPositional reads "[operation] path [content]" where content may span
// several lines.
func splitPositional(text string) (op, path, content string, hasContent bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", "", false
	}
	head, rest := cutField(text)
	if _, ok := parseOperation(head); ok {
		op = head
		head, rest = cutField(rest)
	}
	path = unquote(head)
	if rest != "" {
		content = rest
		hasContent = true
	}
	return op, path, content, hasContent
}

func cutField(text string) (string, string) {
	text = strings.TrimLeft(text, " \t")
	idx := strings.IndexAny(text, " \t\n")
	if idx < 0 {
		return text, ""
	}
	rest := text[idx+1:]
	if text[idx] != '\n' {
		rest = strings.TrimLeft(rest, " \t")
		rest = strings.TrimPrefix(rest, "\n")
	}
	return text[:idx], rest
}

// unpack turns any accepted shape into an object and/or positional text.
func unpack(raw ports.RawArgs) (map[string]any, string) {
	switch raw.Shape {
	case ports.ShapeObject:
		return unwrap(raw.Object), ""
	case ports.ShapeJSONText, ports.ShapeText:
		if obj, ok := decodeObject(raw.Text); ok {
			return unwrap(obj), ""
		}
		return nil, raw.Text
	default:
		return nil, ""
	}
}

func decodeObject(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, true
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// unwrap descends into {"args": {...}} style wrappers and decodes a "raw"
// string that itself holds JSON.
func unwrap(obj map[string]any) map[string]any {
	for depth := 0; depth < 3 && len(obj) == 1; depth++ {
		var next map[string]any
		for _, key := range wrapperKeys {
			switch v := obj[key].(type) {
			case map[string]any:
				next = v
			case string:
				if decoded, ok := decodeObject(v); ok {
					next = decoded
				}
			}
			if next != nil {
				break
			}
		}
		if next == nil {
			if raw, ok := obj["raw"].(string); ok {
				if decoded, ok := decodeObject(raw); ok {
					next = decoded
				}
			}
		}
		if next == nil {
			break
		}
		obj = next
	}
	return obj
}

func firstString(obj map[string]any, keys []string) string {
	value, _ := lookupString(obj, keys)
	return strings.TrimSpace(value)
}

func lookupString(obj map[string]any, keys []string) (string, bool) {
	if obj == nil {
		return "", false
	}
	for _, key := range keys {
		value, ok := obj[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			return v, true
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			return strings.Join(parts, "\n"), true
		case map[string]any:
			data, err := json.Marshal(v)
			if err == nil {
				return string(data), true
			}
		default:
			return fmt.Sprint(v), true
		}
	}
	return "", false
}

func unquote(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			text = text[1 : len(text)-1]
		}
	}
	return strings.TrimSpace(text)
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return unquote(text)
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
