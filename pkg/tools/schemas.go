package tools

import "ai-todo-agent-be/pkg/llm"

const (
	ToolAddTask      = "add_task"
	ToolListTasks    = "list_tasks"
	ToolUpdateTask   = "update_task"
	ToolDeleteTask   = "delete_task"
	ToolCompleteTask = "complete_task"
)

var taskReferenceProperties = map[string]any{
	"task_id": map[string]any{
		"type":        "string",
		"description": "Id of the task, as returned by list_tasks.",
	},
	"task_ref": map[string]any{
		"type":        "string",
		"description": "Words from the task title when the id is unknown. If several tasks match, no change is made and the candidates are returned so you can ask the user which one they mean.",
	},
}

func withReference(props map[string]any) map[string]any {
	out := make(map[string]any, len(props)+len(taskReferenceProperties))
	for k, v := range taskReferenceProperties {
		out[k] = v
	}
	for k, v := range props {
		out[k] = v
	}
	return out
}

func schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        ToolAddTask,
			Description: "Create a new task for the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Short task title, 1 to 200 characters.",
						"maxLength":   maxTitleLength,
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Optional longer details.",
						"maxLength":   maxDescriptionLength,
					},
				},
				"required": []string{"title"},
			},
		},
		{
			Name:        ToolListTasks,
			Description: "List the user's tasks, optionally filtered by completion status.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"status": map[string]any{
						"type": "string",
						"enum": []string{"all", "incomplete", "completed"},
					},
				},
			},
		},
		{
			Name:        ToolUpdateTask,
			Description: "Change the title and/or description of an existing task.",
			Parameters: map[string]any{
				"type": "object",
				"properties": withReference(map[string]any{
					"title":       map[string]any{"type": "string", "maxLength": maxTitleLength},
					"description": map[string]any{"type": "string", "maxLength": maxDescriptionLength},
				}),
			},
		},
		{
			Name:        ToolDeleteTask,
			Description: "Permanently delete a task.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": withReference(nil),
			},
		},
		{
			Name:        ToolCompleteTask,
			Description: "Mark a task as completed (completed=true) or reopen it (completed=false).",
			Parameters: map[string]any{
				"type": "object",
				"properties": withReference(map[string]any{
					"completed": map[string]any{"type": "boolean"},
				}),
				"required": []string{"completed"},
			},
		},
	}
}
