package queue

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"

	"github.com/harukeys/GrooveBot-Go/bot"
)

// Admission error kinds, checkable with errors.Is. Every rejection is
// returned, never panicked, so the message layer can pick the right
// remedy per kind.
var (
	// ErrDuplicateSong is returned when the user already has this
	// identical song tracked.
	ErrDuplicateSong = errors.New("queue: song already requested")

	// ErrFairnessViolation is returned when the user's pending slot is
	// occupied or their song is currently playing.
	ErrFairnessViolation = errors.New("queue: fairness limit reached")

	// ErrSongTooLong is returned when the duration exceeds the
	// configured maximum, independent of fairness.
	ErrSongTooLong = errors.New("queue: song exceeds duration limit")

	// ErrReplacementRejected is returned when there is no pending song
	// to replace, or the target is already committed to near-term
	// playback.
	ErrReplacementRejected = errors.New("queue: replacement rejected")
)

// AdmissionError wraps an admission error kind with enough structured
// context to render a user-facing message without re-querying state.
type AdmissionError struct {
	GuildID      snowflake.ID
	User         bot.UserRef
	Title        string
	Reason       string
	PendingCount int
	Err          error
}

// Error implements the error interface.
func (e *AdmissionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("guild %s: %q by %s: %s", e.GuildID, e.Title, e.User.DisplayName, e.Reason)
	}
	return fmt.Sprintf("guild %s: %q by %s: %v", e.GuildID, e.Title, e.User.DisplayName, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *AdmissionError) Unwrap() error {
	return e.Err
}

func (m *Manager) admissionError(kind error, user bot.UserRef, title, reason string, pending int) error {
	return &AdmissionError{
		GuildID:      m.guildID,
		User:         user,
		Title:        title,
		Reason:       reason,
		PendingCount: pending,
		Err:          kind,
	}
}
