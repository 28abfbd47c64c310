// Package transcribe drives the external transcription capability: throwaway
// session acquisition, audio submission, and completion polling.
package transcribe

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// Credentials identify a throwaway account on the scribe service. One is
// generated per job and never reused, so no state leaks across jobs.
type Credentials struct {
	Email    string
	Password string
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCredentials generates fresh throwaway credentials. These guard nothing
// beyond a single disposable session, so they need uniqueness, not secrecy.
func NewCredentials() Credentials {
	pw := make([]byte, 10)
	for i := range pw {
		pw[i] = passwordAlphabet[rand.IntN(len(passwordAlphabet))]
	}
	return Credentials{
		Email:    uuid.New().String() + "@mailbox.example",
		Password: string(pw),
	}
}

// Options configure one transcription on the remote service.
type Options struct {
	Language string
	Diarize  bool
	Restore  bool
}

// Entry is one row of the remote service's transcription listing. ResultText
// is empty until the remote job finishes.
type Entry struct {
	Name       string
	ResultText string
}

// Client acquires sessions on the external capability.
type Client interface {
	Register(ctx context.Context, creds Credentials) (Session, error)
}

// Session is one authenticated scribe-service session. Close is idempotent
// and must be called on every exit path; leaked sessions exhaust the
// service's account surface.
type Session interface {
	Configure(ctx context.Context, opts Options) error
	Upload(ctx context.Context, path string) error
	ListEntries(ctx context.Context) ([]Entry, error)
	Close() error
}

// RegistrationError indicates session acquisition failed.
type RegistrationError struct {
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register session: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// UploadError indicates the audio could not be submitted.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
