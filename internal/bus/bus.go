package bus

import "context"

// Message is a payload delivered on a named channel.
type Message struct {
	Channel string
	Payload []byte
}

// Bus is the shared pub/sub fabric between server processes. Every
// process subscribes to the channels it cares about and publishes its
// own mutations; the bus loops published messages back to the
// publisher's process as well, so local delivery takes the same path as
// remote delivery.
type Bus interface {
	// Publish sends a payload on a channel. Delivery is at-most-once
	// per subscriber with no cross-subscriber ordering guarantee.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe listens on a channel pattern ("team.*" matches every
	// team channel). The returned stop function releases the
	// subscription and closes the message channel.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, func(), error)
}

// Channel names. One channel per team and per user.
const (
	TeamChannelPrefix = "team."
	UserChannelPrefix = "user."
)

// TeamChannel returns the broadcast channel for a team.
func TeamChannel(teamID string) string { return TeamChannelPrefix + teamID }

// UserChannel returns the broadcast channel for a user.
func UserChannel(userID string) string { return UserChannelPrefix + userID }
