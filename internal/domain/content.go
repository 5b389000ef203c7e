package domain

// ContentKind discriminates outbound message payloads.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindMedia    ContentKind = "media"
	KindLocation ContentKind = "location"
	KindButtons  ContentKind = "buttons"
	KindList     ContentKind = "list"
)

// Content is an outbound payload: Text, *MediaRef, Location, Buttons or List.
type Content interface {
	Kind() ContentKind
}

// Text is a plain text body.
type Text string

func (Text) Kind() ContentKind { return KindText }

// MediaRef is an in-memory attachment, held only for the duration of a send.
type MediaRef struct {
	MimeType string `json:"mimetype"`
	Data     string `json:"-"` // base64 payload
	Filename string `json:"filename"`
}

func (*MediaRef) Kind() ContentKind { return KindMedia }

// Location is a geographic pin.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description,omitempty"`
}

func (Location) Kind() ContentKind { return KindLocation }

// Button is a single quick-reply button.
type Button struct {
	ID   string `json:"id,omitempty"`
	Body string `json:"body"`
}

// Buttons is a message with quick-reply buttons.
type Buttons struct {
	Body    string
	Buttons []Button
	Title   string
	Footer  string
}

func (Buttons) Kind() ContentKind { return KindButtons }

// ListRow is one selectable row in a list section.
type ListRow struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ListSection groups rows under a title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// List is a single-select list message.
type List struct {
	Body       string
	ButtonText string
	Sections   []ListSection
	Title      string
	Footer     string
}

func (List) Kind() ContentKind { return KindList }
