package entity

// Participant is the cached display identity for a user id, resolved from
// the external profile store. It is derived data; this service never writes
// it back.
type Participant struct {
	UserID      string `json:"user_id" firestore:"userId"`
	DisplayName string `json:"display_name" firestore:"displayName"`
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarUrl,omitempty"`
	Role        string `json:"role" firestore:"role"`
}
