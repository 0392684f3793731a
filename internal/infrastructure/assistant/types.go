package assistant

// Wire types for the Assistants v2 API. Only the fields this gateway reads
// are declared; the API sends much more.

type threadCreateRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type threadEnvelope struct {
	ID string `json:"id"`
}

type messageCreateRequest struct {
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type runCreateRequest struct {
	AssistantID string            `json:"assistant_id"`
	Stream      bool              `json:"stream"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type runEnvelope struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	LastError *runError `json:"last_error"`
}

type runError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// messageDelta carries incremental text for one assistant message.
type messageDelta struct {
	Delta struct {
		Content []contentPart `json:"content"`
	} `json:"delta"`
}

type contentPart struct {
	Type string     `json:"type"`
	Text *textValue `json:"text"`
}

type textValue struct {
	Value string `json:"value"`
}

type messageList struct {
	Data []messageEnvelope `json:"data"`
}

type messageEnvelope struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// joinText concatenates the text parts of a message, skipping images and
// other non-text content.
func joinText(parts []contentPart) string {
	var out string
	for _, p := range parts {
		if p.Type == "text" && p.Text != nil {
			out += p.Text.Value
		}
	}
	return out
}
