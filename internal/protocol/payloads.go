package protocol

// StreamTypeDASH marks descriptors whose audio and video arrive as separate streams.
const StreamTypeDASH = "dash"

// VideoData is the video descriptor shared by the room server and the resolver.
type VideoData struct {
	OriginalURL   string `json:"original_url"`
	StreamURL     string `json:"stream_url,omitempty"`
	Title         string `json:"title,omitempty"`
	IsLive        bool   `json:"is_live"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	BackendEngine string `json:"backend_engine,omitempty"`
	Quality       string `json:"quality,omitempty"`
	HasAudio      *bool  `json:"has_audio,omitempty"`
	StreamType    string `json:"stream_type,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	AudioURL      string `json:"audio_url,omitempty"`
	AddedBy       string `json:"added_by,omitempty"`
	Pinned        bool   `json:"pinned,omitempty"`
}

// Identity returns the value used to tell two descriptors apart.
func (v *VideoData) Identity() string {
	if v == nil {
		return ""
	}
	return v.OriginalURL
}

// IsDualStream reports whether audio and video are delivered independently.
func (v *VideoData) IsDualStream() bool {
	if v == nil {
		return false
	}
	return v.StreamType == StreamTypeDASH && v.VideoURL != "" && v.AudioURL != ""
}

// DisplayTitle falls back to the original URL when the title is unknown.
func (v *VideoData) DisplayTitle() string {
	if v == nil {
		return ""
	}
	if v.Title != "" {
		return v.Title
	}
	return v.OriginalURL
}

// Clone returns a deep copy.
func (v *VideoData) Clone() *VideoData {
	if v == nil {
		return nil
	}
	c := *v
	if v.HasAudio != nil {
		has := *v.HasAudio
		c.HasAudio = &has
	}
	return &c
}

// Member is a room participant.
type Member struct {
	Email string `json:"email"`
}

// SyncPayload carries the full or partial room state. Nil fields were absent
// from the frame and must not overwrite known state.
type SyncPayload struct {
	VideoData    *VideoData        `json:"video_data,omitempty"`
	Members      *[]Member         `json:"members,omitempty"`
	Queue        *[]VideoData      `json:"queue,omitempty"`
	Roles        map[string]string `json:"roles,omitempty"`
	YourEmail    *string           `json:"your_email,omitempty"`
	PlayingIndex *int              `json:"playing_index,omitempty"`
	IsPlaying    *bool             `json:"is_playing,omitempty"`
	Timestamp    *float64          `json:"timestamp,omitempty"`
	Permanent    *bool             `json:"permanent,omitempty"`
}

// MembersPayload is sent with user_joined and user_left.
type MembersPayload struct {
	Email   string    `json:"email,omitempty"`
	Members *[]Member `json:"members,omitempty"`
}

// VideoPayload is used by set_video and queue_add.
type VideoPayload struct {
	VideoData *VideoData `json:"video_data"`
}

// TimestampPayload is used by play, pause and seek.
type TimestampPayload struct {
	Timestamp float64 `json:"timestamp"`
}

// QueuePayload is sent with queue_update.
type QueuePayload struct {
	Queue        *[]VideoData `json:"queue,omitempty"`
	PlayingIndex *int         `json:"playing_index,omitempty"`
}

// RolesPayload is sent with roles_update.
type RolesPayload struct {
	Roles map[string]string `json:"roles"`
}

// SettingsPayload is sent with room_settings_update.
type SettingsPayload struct {
	Permanent *bool `json:"permanent,omitempty"`
}

// PingPayload carries the sender's local clock in milliseconds.
type PingPayload struct {
	ClientTime float64 `json:"client_time"`
}

// PongPayload echoes the probe clock back.
type PongPayload struct {
	ClientTime *float64 `json:"client_time,omitempty"`
	ServerTime float64  `json:"server_time,omitempty"`
}

// HeartbeatPayload is broadcast periodically while the room is playing.
type HeartbeatPayload struct {
	Timestamp  *float64 `json:"timestamp,omitempty"`
	ServerTime float64  `json:"server_time,omitempty"`
	IsPlaying  *bool    `json:"is_playing,omitempty"`
}

// IndexPayload addresses a single queue entry.
type IndexPayload struct {
	Index int `json:"index"`
}

// ReorderPayload moves a queue entry.
type ReorderPayload struct {
	OldIndex int `json:"old_index"`
	NewIndex int `json:"new_index"`
}

// PromotePayload changes another member's role.
type PromotePayload struct {
	TargetEmail string `json:"target_email"`
	Role        string `json:"role"`
}
