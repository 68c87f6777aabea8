package model

// All lists every table owned by the agent service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Conversation{},
		&Message{},
		&Turn{},
		&Task{},
	}
}
