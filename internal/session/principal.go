package session

import "context"

// Principal is the authenticated caller, threaded through request contexts.
type Principal struct {
	RegistrationID int64
	IsOrganizer    bool
	SessionID      string
	CSRFToken      string
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool { return p.RegistrationID > 0 }

// CanAccess reports whether p may read or edit registration id: the owner or any organizer.
func (p Principal) CanAccess(id int64) bool {
	if !p.Authenticated() {
		return false
	}
	return p.IsOrganizer || p.RegistrationID == id
}

type principalKey struct{}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.Authenticated()
}
