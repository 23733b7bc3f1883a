package entities

// User identifies the sender of an incoming message.
type User struct {
	ID     int64
	Name   string
	ChatID int64
}

type MessageKind string

const (
	// MessageKindPhoto is a compressed photo sent through the chat.
	MessageKindPhoto MessageKind = "photo"

	// MessageKindDocument is a file attachment, possibly an uncompressed image.
	MessageKindDocument MessageKind = "document"

	// MessageKindCommand is a slash command such as /status.
	MessageKindCommand MessageKind = "command"

	// MessageKindText is any other plain text message.
	MessageKindText MessageKind = "text"
)

// Attachment is a reference to downloadable content held by the bot runtime.
// The bytes themselves are fetched on demand through the runtime.
type Attachment struct {
	FileID   string
	FileName string // original name as sent, empty for photos
	MimeType string // declared by the sender's client, may be empty
	Size     int64  // declared size in bytes, 0 if unknown
}

type Message struct {
	Sender     User
	Kind       MessageKind
	Attachment Attachment // set for photo and document kinds
	Command    string     // set for command kind, without the leading slash
	Text       string
}

func (m *Message) HasAttachment() bool {
	return m.Kind == MessageKindPhoto || m.Kind == MessageKindDocument
}
