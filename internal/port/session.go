package port

import "time"

// SessionStore keys conversation state by session id. It is not durable:
// everything is lost on restart. A ttl <= 0 means the entry never expires;
// otherwise it expires ttl after the last Put.
type SessionStore[T any] interface {
	Put(id string, value T, ttl time.Duration)

	Get(id string) (T, bool)

	Delete(id string)

	Count() int
}
