package model

// MediaKind is the server-side processing preset used for an attachment.
type MediaKind string

const (
	MediaPhoto MediaKind = "PHOTO"
	MediaVideo MediaKind = "VIDEO"
	MediaAudio MediaKind = "AUDIO"
)

// NormalizedFile is the processed variant of an uploaded file.
type NormalizedFile struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Filesize int64  `json:"filesize"`
	MimeType string `json:"mimetype"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

// AssetReference tracks an uploaded file through normalization.
// NormalizedKey is only set once the server has confirmed a normalized variant.
type AssetReference struct {
	OriginalKey   string
	NormalizedKey string
	MimeType      string
	Width         *int
	Height        *int
	FilesizeBytes int64
	DisplayName   string
}

// IsNormalized reports whether the asset carries everything needed to be attached.
func (a *AssetReference) IsNormalized() bool {
	return a != nil && a.OriginalKey != "" && a.NormalizedKey != "" && a.DisplayName != "" && a.MimeType != ""
}

// ApplyNormalized copies the normalized metadata onto the reference.
func (a *AssetReference) ApplyNormalized(n *NormalizedFile) {
	if n == nil {
		return
	}
	a.NormalizedKey = n.Key
	if n.Name != "" {
		a.DisplayName = n.Name
	}
	if n.Filesize > 0 {
		a.FilesizeBytes = n.Filesize
	}
	if n.MimeType != "" {
		a.MimeType = n.MimeType
	}
	a.Width = n.Width
	a.Height = n.Height
}

// OutboundMessage is a message the bot posts to a channel.
type OutboundMessage struct {
	CorrelationID string
	ChannelID     string
	Text          string
	Media         *AssetReference
	MediaKind     MediaKind
}

// InboundMessage is a message read back from a channel.
type InboundMessage struct {
	ID         ID
	Text       string
	SenderID   ID
	SenderName string
}
