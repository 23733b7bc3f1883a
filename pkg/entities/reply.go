package entities

// Reply is the text to send back to the chat a message came from.
// The zero value means no reply.
type Reply struct {
	Text string
}

func (r Reply) IsEmpty() bool {
	return r.Text == ""
}
