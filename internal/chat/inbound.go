package chat

// Inbound is a message the service can handle. The set of kinds is closed:
// only types in this package implement it.
type Inbound interface {
	inbound()
}

// TextMessage is a plain text prompt.
type TextMessage struct {
	UserID int64
	ChatID int64
	Text   string
}

// VoiceMessage carries raw audio in the given container format ("ogg", "mp3").
type VoiceMessage struct {
	UserID int64
	ChatID int64
	Audio  []byte
	Format string
}

// PhotoMessage is a picture already described by an external classifier.
type PhotoMessage struct {
	UserID  int64
	ChatID  int64
	Caption string
	Labels  []string
}

// ClearHistory drops the user's conversation history.
type ClearHistory struct {
	UserID int64
}

// SpeakText asks for a voice rendition of Text regardless of the TTS flag.
type SpeakText struct {
	UserID int64
	Text   string
}

// ReloadModel asks the service to drop derived state such as stale cache entries.
type ReloadModel struct{}

func (TextMessage) inbound()  {}
func (VoiceMessage) inbound() {}
func (PhotoMessage) inbound() {}
func (ClearHistory) inbound() {}
func (SpeakText) inbound()    {}
func (ReloadModel) inbound()  {}

// Reply is what the transport sends back.
type Reply struct {
	Text       string
	Thought    string
	VoicePath  string
	Transcript string
	Cached     bool
}
