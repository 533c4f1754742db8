package model

import "context"

// Role is the authorization role of an authenticated client.
type Role string

// Client roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated identity acting on a request.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAct reports whether the actor may act on a resource owned by ownerID.
// The rule is uniform across the system: owner OR admin.
func (a Actor) CanAct(ownerID string) bool {
	return a.ID == ownerID || a.IsAdmin()
}

type actorKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the actor from the context. The second return value is
// false when no actor was set.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
