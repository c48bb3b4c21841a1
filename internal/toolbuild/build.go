package toolbuild

import (
	"agentcore/internal/tools"
	"agentcore/internal/tools/handlers"
)

// RegistryOptions controls which optional handler families Build
// wires in, since some (web search, MCP) depend on host-supplied
// credentials or pools that may not be present in every run.
type RegistryOptions struct {
	// ExaAPIKey enables the web_search tool when non-empty.
	ExaAPIKey string
	// EnableMCP registers the generic MCP handler under every
	// "server/tool" name the router can produce; the handler itself
	// resolves the pooled client per call, so no server list is needed
	// here.
	EnableMCP bool
}

// Build constructs a Registry with every archetype handler registered
// under its schema, as one fully-specified table rather than an ad
// hoc tool list.
func Build(opts RegistryOptions) *tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(tools.Spec{
		Name:        "shell",
		Description: "Run a shell command against the working repository, with an optional timeout and cwd override.",
		Schema: obj(map[string]any{
			"command":                    str("Command line to execute, e.g. 'ls -la'."),
			"cwd":                        str("Working directory relative to the repo root."),
			"timeout_ms":                 num("Timeout in milliseconds before the process group is killed."),
			"with_escalated_permissions": boolean("Request escalated permissions for this command."),
			"is_background":              boolean("Run the command in the background and return a descriptor immediately."),
		}, []string{"command"}),
		SupportsParallel: false,
	}, handlers.NewShellHandler())

	reg.Register(tools.Spec{
		Name:        "read_file",
		Description: "Read a file's contents, optionally windowed by a 1-based line range.",
		Schema: obj(map[string]any{
			"path":       str("Path to the file, relative to the repo root."),
			"start_line": num("1-based first line to include."),
			"end_line":   num("1-based last line to include."),
		}, []string{"path"}),
		SupportsParallel: true,
	}, handlers.NewReadHandler())

	reg.Register(tools.Spec{
		Name:        "edit_file",
		Description: "Replace every exact occurrence of old_str with new_str in a file, verifying old_str is present first.",
		Schema: obj(map[string]any{
			"path":    str("Path to the file to edit."),
			"old_str": str("Exact text to replace; every occurrence is replaced."),
			"new_str": str("Replacement text."),
			"dry_run": boolean("Validate without writing."),
		}, []string{"path", "old_str", "new_str"}),
		SupportsParallel: false,
	}, handlers.NewEditHandler())

	reg.Register(tools.Spec{
		Name:        "apply_patch",
		Description: "Apply a V4A-style unified patch to a single file.",
		Schema: obj(map[string]any{
			"file_path": str("Path to the file the patch targets."),
			"patch":     str("The patch body in V4A format."),
		}, []string{"file_path", "patch"}),
		SupportsParallel: false,
	}, handlers.NewApplyPatchHandler())

	reg.Register(tools.Spec{
		Name:        "create_file",
		Description: "Create a new file with the given content.",
		Schema: obj(map[string]any{
			"path":           str("Path of the file to create."),
			"content":        str("File content."),
			"if_exists":      str("One of error, overwrite, skip."),
			"create_parents": boolean("Create missing parent directories."),
			"dry_run":        boolean("Validate without writing."),
		}, []string{"path", "content"}),
		SupportsParallel: false,
	}, handlers.NewCreateFileHandler())

	reg.Register(tools.Spec{
		Name:             "delete_file",
		Description:      "Delete a file, recording its prior content for undo.",
		Schema:           obj(map[string]any{"path": str("Path of the file to delete.")}, []string{"path"}),
		SupportsParallel: false,
	}, handlers.NewDeleteFileHandler())

	reg.Register(tools.Spec{
		Name:        "rename_file",
		Description: "Rename or move a file.",
		Schema: obj(map[string]any{
			"source_path":        str("Current path."),
			"dest_path":          str("Destination path."),
			"overwrite":          boolean("Overwrite an existing file at dest_path."),
			"create_dest_parent": boolean("Create missing destination parent directories."),
			"dry_run":            boolean("Validate without writing."),
		}, []string{"source_path", "dest_path"}),
		SupportsParallel: false,
	}, handlers.NewRenameFileHandler())

	reg.Register(tools.Spec{
		Name:        "line_edit",
		Description: "Insert, replace, or delete lines addressed by line number or by anchor text and occurrence.",
		Schema: obj(map[string]any{
			"path":       str("Path of the file to edit."),
			"mode":       str("One of insert_before, insert_after, replace, delete."),
			"line":       num("1-based line number, when addressing by number."),
			"anchor":     str("Anchor text, when addressing by anchor."),
			"occurrence": num("Which occurrence of the anchor to use (1-based)."),
			"line_count": num("Number of lines the operation spans, for replace/delete."),
			"text":       str("Replacement or inserted text."),
			"dry_run":    boolean("Validate without writing."),
		}, []string{"path", "mode"}),
		SupportsParallel: false,
	}, handlers.NewLineEditHandler())

	reg.Register(tools.Spec{
		Name:        "template_block",
		Description: "Insert or replace an anchor-relative block of text, with an optional pre-image check.",
		Schema: obj(map[string]any{
			"path":           str("Path of the file to edit."),
			"anchor":         str("Anchor text to locate the block relative to."),
			"mode":           str("One of insert_after, replace_block."),
			"block":          str("Block content to write."),
			"expected_block": str("Expected current block content, for replace_block conflict detection."),
			"dry_run":        boolean("Validate without writing."),
		}, []string{"path", "anchor", "mode", "block"}),
		SupportsParallel: false,
	}, handlers.NewTemplateBlockHandler())

	reg.Register(tools.Spec{
		Name:        "grep",
		Description: "Search files for a regex pattern, ripgrep-first with a Go fallback scanner.",
		Schema: obj(map[string]any{
			"pattern":        str("Regular expression to search for."),
			"paths":          arr(str(""), "Paths to restrict the search to."),
			"glob":           arr(str(""), "Glob patterns to restrict the search to."),
			"case_sensitive": boolean("Match case-sensitively."),
			"max_results":    num("Maximum number of matches to return."),
		}, []string{"pattern"}),
		SupportsParallel: true,
	}, handlers.NewGrepHandler())

	reg.Register(tools.Spec{
		Name:        "list_files",
		Description: "List files and directories under a target directory, depth-bounded and sortable.",
		Schema: obj(map[string]any{
			"target_directory": str("Directory to list."),
			"max_depth":        num("Maximum recursion depth."),
			"sort_by":          str("One of name, mtime."),
			"sort_order":       str("One of asc, desc."),
			"head_limit":       num("Maximum number of entries to return."),
		}, []string{"target_directory"}),
		SupportsParallel: true,
	}, handlers.NewListFilesHandler())

	reg.Register(tools.Spec{
		Name:        "glob_file_search",
		Description: "Find files under a target directory matching a glob pattern.",
		Schema: obj(map[string]any{
			"target_directory": str("Directory to search."),
			"glob_pattern":     str("Glob pattern to match file paths against."),
			"head_limit":       num("Maximum number of matches to return."),
		}, []string{"target_directory", "glob_pattern"}),
		SupportsParallel: true,
	}, handlers.NewGlobFileSearchHandler())

	reg.Register(tools.Spec{
		Name:        "codebase_search",
		Description: "Best-effort keyword search across target directories, a simple stand-in for semantic code search.",
		Schema: obj(map[string]any{
			"query":              str("Natural-language or keyword query."),
			"target_directories": arr(str(""), "Directories to search."),
			"glob_pattern":       str("Glob pattern to restrict candidate files."),
			"max_results":        num("Maximum number of results."),
			"snippet_lines":      num("Number of context lines per snippet."),
		}, []string{"query"}),
		SupportsParallel: true,
	}, handlers.NewCodebaseSearchHandler())

	reg.Register(tools.Spec{
		Name:        "todo_write",
		Description: "Create or update the session's todo list.",
		Schema: obj(map[string]any{
			"merge": boolean("Merge into the existing list instead of replacing it."),
			"todos": arr(obj(map[string]any{
				"id":      str("Stable identifier for this todo item."),
				"content": str("Todo text."),
				"status":  str("One of pending, in_progress, completed."),
			}, []string{"id"}), "Todo items."),
		}, []string{"todos"}),
		SupportsParallel: false,
	}, handlers.NewTodoWriteHandler(handlers.NewTodoStore()))

	if opts.ExaAPIKey != "" {
		reg.Register(tools.Spec{
			Name:        "web_search",
			Description: "Search the web via Exa and return ranked results with snippets.",
			Schema: obj(map[string]any{
				"search_term": str("Query to search for."),
				"explanation": str("Why this search is being performed."),
				"max_results": num("Maximum number of results."),
			}, []string{"search_term"}),
			SupportsParallel: true,
		}, handlers.NewWebSearchHandler(opts.ExaAPIKey))
	}

	if opts.EnableMCP {
		// MCP tools are detected by the router via the "server/tool"
		// naming convention rather than a per-server registration; one
		// handler instance serves every such name.
		// MCP tool lists come from the servers themselves, outside
		// this registry's schema-surface remit.
		reg.RegisterMCP(handlers.NewMCPHandler())
	}

	return reg
}

func obj(properties map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func num(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func arr(items map[string]any, description string) map[string]any {
	return map[string]any{"type": "array", "items": items, "description": description}
}
