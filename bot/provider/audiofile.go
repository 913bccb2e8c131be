package provider

import (
	"net/url"
	"path"
	"strings"
)

// AudioFile matches direct links to audio files on any host. The trailing
// path segment is the track key, so mirrors of the same file on different
// hosts still collide on identity.
type AudioFile struct {
	extensions map[string]struct{}
}

// NewAudioFile creates an AudioFile provider covering common audio
// container extensions.
func NewAudioFile() *AudioFile {
	exts := map[string]struct{}{
		".mp3":  {},
		".ogg":  {},
		".oga":  {},
		".opus": {},
		".wav":  {},
		".flac": {},
		".m4a":  {},
		".aac":  {},
		".webm": {},
	}
	return &AudioFile{extensions: exts}
}

// Name implements Provider.
func (a *AudioFile) Name() string { return "file" }

// MatchURL implements Provider.
func (a *AudioFile) MatchURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}

	name := strings.ToLower(path.Base(u.Path))
	if name == "." || name == "/" {
		return "", false
	}
	if _, ok := a.extensions[path.Ext(name)]; !ok {
		return "", false
	}
	return name, true
}
