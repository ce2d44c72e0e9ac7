package authsync

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Logger is the logging contract used across the package.
type Logger interface {
	Trace(format string, args ...any)
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Fatal(format string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Credentials are submitted by the login forms.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserRegistration is the payload of the user register form.
type UserRegistration struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Avatar is the profile image uploaded during partner registration.
type Avatar struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// PartnerRegistration is sent as multipart form data.
type PartnerRegistration struct {
	FullName    string  `json:"fullName"`
	ContactName string  `json:"contactName"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Address     string  `json:"address"`
	Avatar      *Avatar `json:"-"`
}

// RawUser is the user object as returned by the backend. Partner accounts
// carry ContactName and Address, user accounts usually don't.
type RawUser struct {
	ID          string `json:"_id,omitempty"`
	AltID       string `json:"id,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role,omitempty"`
	AccountType string `json:"accountType,omitempty"`
}

// Identifier returns whichever id field the backend populated.
func (u *RawUser) Identifier() string {
	if u == nil {
		return ""
	}
	if u.ID != "" {
		return u.ID
	}
	return u.AltID
}

// Envelope is the decoded body of every auth endpoint.
type Envelope struct {
	User        *RawUser `json:"user"`
	Role        string   `json:"role,omitempty"`
	AccountType string   `json:"accountType,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// Identity is the resolved, read-only view of the logged in principal.
type Identity struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        Role   `json:"role"`
}

// DisplayName prefers the full name and falls back to the contact name.
func (i Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	if i.ContactName != "" {
		return i.ContactName
	}
	return i.Email
}

// IsPartner reports whether the identity belongs to a partner account.
func (i Identity) IsPartner() bool {
	return i.Role == RolePartner
}

// NewIdentity resolves the role once and builds the identity.
func NewIdentity(raw *RawUser, env Envelope) *Identity {
	if raw == nil {
		return nil
	}
	return &Identity{
		ID:          raw.Identifier(),
		FullName:    raw.FullName,
		ContactName: raw.ContactName,
		Email:       raw.Email,
		Phone:       raw.Phone,
		Address:     raw.Address,
		Avatar:      raw.Avatar,
		Role:        ResolveRole(raw, env),
	}
}

// SessionState is the snapshot handed to subscribers.
type SessionState struct {
	Identity     *Identity `json:"identity"`
	Initializing bool      `json:"initializing"`
	Checking     bool      `json:"checking"`
	Version      uint64    `json:"version"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsAuthenticated is derived from the identity.
func (s SessionState) IsAuthenticated() bool {
	return s.Identity != nil
}

// Loading is true while initializing or while a call is in flight.
func (s SessionState) Loading() bool {
	return s.Initializing || s.Checking
}

// Role returns the role of the current identity, empty when anonymous.
func (s SessionState) Role() Role {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

func (s SessionState) clone() SessionState {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	return out
}

type defLogger struct{}

func (d defLogger) Trace(format string, args ...any) {
	fmt.Printf("[TRC] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) Fatal(format string, args ...any) {
	fmt.Printf("[FTL] AUTHSYNC "+newline(format), args...)
}

func (d defLogger) WithContext(context.Context) Logger {
	return d
}

type nopLogger struct{}

func (nopLogger) Trace(string, ...any) {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}

func (n nopLogger) WithContext(context.Context) Logger {
	return n
}

// NopLogger discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type staticProvider struct {
	logger Logger
}

func (p staticProvider) GetLogger(string) Logger {
	return p.logger
}

// ProviderFromLogger returns a LoggerProvider that always hands out logger.
func ProviderFromLogger(logger Logger) LoggerProvider {
	if logger == nil {
		logger = defLogger{}
	}
	return staticProvider{logger: logger}
}

// ResolveLogger picks the named logger from provider, falling back to
// logger and finally to the default stdout logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger == nil {
		logger = defLogger{}
	}
	if provider == nil {
		return ProviderFromLogger(logger), logger
	}
	resolved := provider.GetLogger(name)
	if resolved == nil {
		return ProviderFromLogger(logger), logger
	}
	return provider, resolved
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
