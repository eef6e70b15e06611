package llm

// Role identifies the speaker of a Message in a chat-completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a chat-completion request's message array.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response is the single explicit shape the rest of the module consumes,
// whether the answer came from the cache or a live backend call. The
// original Python implementation synthesized a nested-namespace fake to
// expose `.choices[0].message.content` uniformly; this type replaces that
// indirection with one field both paths construct directly.
type Response struct {
	Content string
}
