/*
Package user contains the lightweight user reference shared across the realtime core.

User and channel records are owned by the persistence layer; this type carries only
the identifier and cached display name the core needs for fast recipient computation.
*/
package user

// Ref identifies a chat participant to the realtime core.
// Fields use JSON tags for serialization in WebSocket events.
type Ref struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Username is the display name of the user, cached from the persistence layer.
	Username string `json:"username"`
}
