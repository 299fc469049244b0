// Package session holds the credential slot shared by every outgoing venue
// request. The slot is written by the login/logout collaborator only; the
// trading core reads it through domain.CredentialSource.
package session

import (
	"sync/atomic"

	"github.com/alanyoungcy/tradeview/internal/domain"
)

// Store is an atomically swapped session slot.
type Store struct {
	cur atomic.Pointer[domain.Session]
}

// NewStore creates a Store seeded with s.
func NewStore(s domain.Session) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Current returns the session in effect. A request reads it once, so a
// concurrent login/logout never changes the credential mid-request.
func (st *Store) Current() domain.Session {
	if p := st.cur.Load(); p != nil {
		return *p
	}
	return domain.Session{}
}

// Set replaces the session.
func (st *Store) Set(s domain.Session) {
	st.cur.Store(&s)
}

// Clear drops the credential (logout).
func (st *Store) Clear() {
	st.cur.Store(&domain.Session{})
}

var _ domain.CredentialSource = (*Store)(nil)
