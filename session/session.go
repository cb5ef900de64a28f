// Package session tracks who is signed in and what they may do. It provides
// the reactive role that feed engines filter by, signed session tokens for
// the store service, and session-scoped storage for UI toggles.
package session

import (
	"strings"
	"sync"
)

// Role is a coarse permission level.
type Role string

// Roles. The zero value is an anonymous visitor.
const (
	RoleNone  Role = ""
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsAdmin reports whether the role may manage content.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// ParseRole maps a string to a known role. Unknown values are anonymous.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleNone
	}
}

// Provider exposes the current role and notifies watchers when it changes.
type Provider interface {
	Role() Role
	// Watch registers fn to be called with the new role after every change.
	// The returned func unregisters it.
	Watch(fn func(Role)) (cancel func())
}

// User is a signed-in identity.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Role        Role   `json:"role"`
}

// Session holds the signed-in user, if any. Users whose e-mail is in the
// admin list are signed in as admins, everyone else as users.
type Session struct {
	mu       sync.Mutex
	user     *User
	admins   map[string]bool
	watchers map[int]func(Role)
	nextID   int
}

// New creates an anonymous session.
func New(adminEmails []string) *Session {
	admins := make(map[string]bool, len(adminEmails))
	for _, email := range adminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			admins[email] = true
		}
	}
	return &Session{
		admins:   admins,
		watchers: make(map[int]func(Role)),
	}
}

// Fixed returns a session already signed in with the given role. Useful for
// clients that take their role from a token.
func Fixed(role Role) *Session {
	s := New(nil)
	if role != RoleNone {
		s.user = &User{Role: role}
	}
	return s
}

// SignIn replaces the current user. The role is resolved from the admin
// list; any role set on u is ignored.
func (s *Session) SignIn(u User) User {
	if s.admins[strings.ToLower(strings.TrimSpace(u.Email))] {
		u.Role = RoleAdmin
	} else {
		u.Role = RoleUser
	}
	s.set(&u)
	return u
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.set(nil)
}

// User returns the signed-in user, or nil.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Role implements Provider.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roleLocked()
}

func (s *Session) roleLocked() Role {
	if s.user == nil {
		return RoleNone
	}
	return s.user.Role
}

// Watch implements Provider.
func (s *Session) Watch(fn func(Role)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *Session) set(u *User) {
	s.mu.Lock()
	before := s.roleLocked()
	s.user = u
	after := s.roleLocked()
	var fns []func(Role)
	if before != after {
		for _, fn := range s.watchers {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(after)
	}
}
