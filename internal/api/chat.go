package api

type ChatMessageRole int

const (
	RoleUser ChatMessageRole = iota
	RoleAssistant
	RoleSystem
)

var roleName = map[ChatMessageRole]string{
	RoleUser:      "user",
	RoleAssistant: "assistant",
	RoleSystem:    "system",
}

func (r ChatMessageRole) String() string {
	return roleName[r]
}

type ChatMessage struct {
	Role    ChatMessageRole
	Content string
}

func UserMessage(content string) *ChatMessage {
	return &ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) *ChatMessage {
	return &ChatMessage{Role: RoleAssistant, Content: content}
}
