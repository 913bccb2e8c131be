package fairness

import (
	"regexp"
	"strings"

	"github.com/harukeys/GrooveBot-Go/bot"
	"github.com/harukeys/GrooveBot-Go/bot/provider"
)

// Identifier is the derived identity of a song. Two songs are the same
// song iff all three fields are equal, which makes re-uploads and
// cosmetically retitled copies collide while staying cheap to compare.
type Identifier struct {
	NormalizedTitle string
	Duration        int
	URLKey          string
}

var (
	// Parenthetical or bracketed tags that carry no identity, like
	// "(Official Video)" or "[4K Remastered]".
	noiseTagPattern = regexp.MustCompile(`(?i)[(\[][^)\]]*\b(official|lyrics?|visuali[sz]er|audio|video|hd|hq|4k|8k|remaster(?:ed)?|live)\b[^)\]]*[)\]]`)

	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeTitle lower-cases a title, strips noise tags and punctuation,
// and collapses whitespace.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = noiseTagPattern.ReplaceAllString(t, " ")
	t = punctuationPattern.ReplaceAllString(t, " ")
	t = whitespacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Identify derives the Identifier for a track, canonicalizing the URL
// through the provider registry.
func Identify(info bot.AudioInfo, providers *provider.Registry) Identifier {
	return Identifier{
		NormalizedTitle: NormalizeTitle(info.Title),
		Duration:        info.Duration,
		URLKey:          providers.KeyFor(info.URL),
	}
}
