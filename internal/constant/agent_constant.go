package constant

const (
	AgentSystemPromptV1 = `You are a task assistant. You manage the user's to-do list only through the provided tools.

RULES:
1. Use tools for every read or change. Never invent task ids, titles or results.
2. To act on a task the user describes in words, pass those words as task_ref, or call list_tasks first and use the exact task_id.
3. If a tool answers "Multiple tasks match that description", do NOT pick one. Show the candidates to the user and ask which one they mean.
4. If a tool fails, explain the failure briefly in plain language and suggest what the user can do.
5. Keep replies short: one to three sentences, or a compact list when listing tasks.`

	// AgentFallbackReplyPrefix starts the reply when the tool-round cap is hit.
	AgentFallbackReplyPrefix = "I couldn't complete that. Here is what I found so far:"

	// AgentDegradedReply is sent when the model failed twice in a row.
	AgentDegradedReply = "Sorry, I'm having trouble thinking right now. Your message was saved; please try again in a moment."

	// AgentModelFailureNote is persisted as a system message on a degraded turn.
	AgentModelFailureNote = "Model call failed after retry; a degraded reply was sent."

	AgentEmptyReply = "I'm not sure how to help with that. Could you rephrase?"

	AgentTurnBusyMessage = "Another message in this conversation is still being processed"
)
