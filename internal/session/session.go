package session

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Session identifies one redaction run.
type Session struct {
	ID        string
	StartedAt time.Time
}

// New starts a session with a fresh random identifier.
func New() *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

// ShortID is the identifier prefix used in log output.
func (s *Session) ShortID() string {
	return s.ID[:8]
}

// TempPath returns a unique hidden path next to target, used to stage output
// before renaming it into place.
func TempPath(target string) string {
	dir, base := filepath.Split(target)
	return filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")
}
