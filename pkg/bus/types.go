package bus

// Document references a file attached to a message. The transport that
// produced it knows how to download it.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
}

// Event is one inbound message written by the account owner.
type Event struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`

	IsReply bool   `json:"is_reply"`
	ReplyTo string `json:"reply_to,omitempty"`
	// ReplyDocument is set when the replied-to message carries a file.
	ReplyDocument *Document `json:"reply_document,omitempty"`
}

// Identity describes the account a transport is signed in as.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Display returns the handle shown to users.
func (i Identity) Display() string {
	switch {
	case i.Username != "":
		return "@" + i.Username
	case i.Name != "":
		return i.Name
	default:
		return i.ID
	}
}
