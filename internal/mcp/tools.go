package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var categoryEnum = mcp.Enum("prompt", "agent", "skill", "command")

// fieldOptions are the item field properties shared by item_create and item_update.
func fieldOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("name", mcp.Description("Display name; unique ignoring case and whitespace")),
		mcp.WithString("description", mcp.Description("Short description; required for agents and skills")),
		mcp.WithString("content", mcp.Description("Markdown body")),
		mcp.WithString("model", mcp.Description("Model alias or id (agents, commands), e.g. sonnet, opus, haiku, inherit")),
		mcp.WithArray("tool_list", mcp.WithStringItems(), mcp.Description("Tools the agent may use")),
		mcp.WithArray("allowed_tools", mcp.WithStringItems(), mcp.Description("Tools allowed for a skill or command")),
		mcp.WithString("argument_hint", mcp.Description("Argument hint shown for a command")),
		mcp.WithString("permission_mode",
			mcp.Enum("default", "acceptEdits", "bypassPermissions", "plan"),
			mcp.Description("Agent permission mode")),
		mcp.WithArray("skill_refs", mcp.WithStringItems(), mcp.Description("Skills the agent loads")),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags; lowercased and deduplicated")),
	}
}

var createToolDef = mcp.NewTool("item_create", append([]mcp.ToolOption{
	mcp.WithDescription("Create a prompt, agent, skill or command. Fields not carried by the category are rejected."),
	mcp.WithString("category", mcp.Required(), categoryEnum),
}, fieldOptions()...)...)

var getToolDef = mcp.NewTool("item_get",
	mcp.WithDescription("Fetch an item by id."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithReadOnlyHintAnnotation(true),
)

var updateToolDef = mcp.NewTool("item_update", append([]mcp.ToolOption{
	mcp.WithDescription("Patch an item. base_version must equal the current version or the call fails with VERSION_CONFLICT. " +
		"An empty string clears an optional field; an empty list clears a list. The category cannot change."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithNumber("base_version", mcp.Required(), mcp.Description("Version the edit was based on")),
	mcp.WithString("category", categoryEnum, mcp.Description("Must equal the current category if given")),
}, fieldOptions()...)...)

var deleteToolDef = mcp.NewTool("item_delete",
	mcp.WithDescription("Delete an item and its entire history."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithDestructiveHintAnnotation(true),
)

var listToolDef = mcp.NewTool("item_list",
	mcp.WithDescription("List items, most recently updated first."),
	mcp.WithString("category", categoryEnum),
	mcp.WithString("tag", mcp.Description("Only items carrying this exact tag")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var searchToolDef = mcp.NewTool("item_search",
	mcp.WithDescription("Search names, descriptions, content and tags. Results rank exact name, then tag, name, description, content."),
	mcp.WithString("query", mcp.Required()),
	mcp.WithString("category", categoryEnum),
	mcp.WithString("tag"),
	mcp.WithNumber("limit", mcp.Description("Maximum results; 0 means all")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("item_export",
	mcp.WithDescription("Write an agent, command or skill as a .claude markdown file under the export directory. "+
		"Set all=true to export every exportable item. Prompts are copy-only."),
	mcp.WithString("id"),
	mcp.WithBoolean("all"),
)

var statsToolDef = mcp.NewTool("item_stats",
	mcp.WithDescription("Item counts per category and tag counts."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List the superseded versions of an item, newest first."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyGetToolDef = mcp.NewTool("history_get",
	mcp.WithDescription("Fetch the snapshot recorded for one superseded version."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithNumber("version", mcp.Required()),
	mcp.WithReadOnlyHintAnnotation(true),
)

var historyRestoreToolDef = mcp.NewTool("history_restore",
	mcp.WithDescription("Make a recorded version current again. The restore is itself a new version."),
	mcp.WithString("id", mcp.Required()),
	mcp.WithNumber("version", mcp.Required()),
)
