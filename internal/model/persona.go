package model

// Persona is an AI character presented to the user as a potential human match.
// A persona never changes during a session.
type Persona struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Age        int      `json:"age"`
	Bio        string   `json:"bio"`
	Traits     []string `json:"personality_traits"`
	AvatarURL  string   `json:"avatar_url,omitempty"`
	VoiceStyle string   `json:"voice_style,omitempty"`
}
