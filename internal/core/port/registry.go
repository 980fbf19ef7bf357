package port

import "github.com/Wyydra/callrelay/internal/core/domain"

// IdentityRegistry maps identities to live connections and back.
type IdentityRegistry interface {
	Register(id domain.Identity, conn Conn) error
	Lookup(id domain.Identity) (Conn, bool)
	IdentityOf(connID domain.ConnID) (domain.Identity, bool)
	// Unregister frees the identity held by connID. It reports false if the
	// connection held none.
	Unregister(connID domain.ConnID) (domain.Identity, bool)
	Identities() []domain.Identity
}
