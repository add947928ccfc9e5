package workspace

import (
	"errors"
	"fmt"
	"os"
	"time"

	"drift/internal/events"
	"drift/internal/fileutil"
	"drift/internal/paths"
)

// Session lists the projects that were open when the daemon last saved it,
// in open order. `drift resume` replays it after a reboot.
type Session struct {
	Projects []string `json:"projects"`
	SavedAt  string   `json:"saved_at"`
}

// LoadSession reads the session record; a missing file returns nil.
func LoadSession(layout paths.Layout) (*Session, error) {
	var session Session
	if err := fileutil.ReadJSON(layout.SessionFile(), &session); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

// AddSessionProject records a project as open, keeping entries unique.
func AddSessionProject(layout paths.Layout, name string) error {
	session, err := LoadSession(layout)
	if err != nil {
		return err
	}
	if session == nil {
		session = &Session{}
	}
	for _, existing := range session.Projects {
		if existing == name {
			return writeSession(layout, session)
		}
	}
	session.Projects = append(session.Projects, name)
	return writeSession(layout, session)
}

// RemoveSessionProject removes a project from the session record. Removing
// from a missing session is a no-op.
func RemoveSessionProject(layout paths.Layout, name string) error {
	session, err := LoadSession(layout)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	kept := session.Projects[:0]
	for _, existing := range session.Projects {
		if existing != name {
			kept = append(kept, existing)
		}
	}
	session.Projects = kept
	return writeSession(layout, session)
}

func writeSession(layout paths.Layout, session *Session) error {
	session.SavedAt = events.Stamp(time.Now())
	if err := fileutil.WriteJSONAtomic(layout.SessionFile(), session); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
