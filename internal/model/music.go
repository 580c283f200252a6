package model

import (
	"fmt"
	"strings"
)

const (
	MinTempo = 40
	MaxTempo = 240

	DefaultTempo           = 120
	DefaultDurationSeconds = 180
)

// BpmTempo is a tempo in beats per minute
type BpmTempo int

// NewBpmTempo rejects tempos outside the playable range
func NewBpmTempo(bpm int) (BpmTempo, error) {
	if bpm < MinTempo || bpm > MaxTempo {
		return 0, fmt.Errorf("tempo %d out of range %d-%d", bpm, MinTempo, MaxTempo)
	}
	return BpmTempo(bpm), nil
}

func (t BpmTempo) String() string {
	return fmt.Sprintf("%d BPM", int(t))
}

// TimeSignature such as 4/4 or 6/8
type TimeSignature struct {
	Beats    int `json:"beats"`
	NoteUnit int `json:"noteUnit"`
}

var CommonTime = TimeSignature{Beats: 4, NoteUnit: 4}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Beats, ts.NoteUnit)
}

// MusicalKey is a root note plus mode
type MusicalKey struct {
	Root Note `json:"root"`
	Mode Mode `json:"mode"`
}

var CMajor = MusicalKey{Root: NoteC, Mode: ModeMajor}

func (k MusicalKey) String() string {
	mode := string(k.Mode)
	if mode == "" {
		mode = string(ModeMajor)
	}
	return fmt.Sprintf("%s %s", k.Root, strings.ToUpper(mode[:1])+mode[1:])
}

var flatToSharp = map[string]Note{
	"DB": NoteCSharp,
	"EB": NoteDSharp,
	"GB": NoteFSharp,
	"AB": NoteGSharp,
	"BB": NoteASharp,
}

var modeAliases = map[string]Mode{
	"":           ModeMajor,
	"maj":        ModeMajor,
	"major":      ModeMajor,
	"m":          ModeMinor,
	"min":        ModeMinor,
	"minor":      ModeMinor,
	"dorian":     ModeDorian,
	"phrygian":   ModePhrygian,
	"lydian":     ModeLydian,
	"mixolydian": ModeMixolydian,
}

// ParseKey accepts forms like "C Major", "Am", "F#maj" and "Bb minor"
func ParseKey(s string) (MusicalKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MusicalKey{}, fmt.Errorf("empty key")
	}

	rootLen := 1
	if len(s) > 1 && (s[1] == '#' || s[1] == 'b') {
		rootLen = 2
	}
	rootPart := strings.ToUpper(s[:rootLen])
	modePart := strings.ToLower(strings.TrimSpace(s[rootLen:]))
	// "Am" and "AM" differ only by case on the mode suffix
	if rootLen == 1 && len(s) == 2 && s[1] == 'M' {
		modePart = "major"
	}

	var root Note
	if n, ok := flatToSharp[rootPart]; ok {
		root = n
	} else {
		root = Note(rootPart)
		if !IsValidNote(root) {
			return MusicalKey{}, fmt.Errorf("invalid root note %q", s[:rootLen])
		}
	}

	mode, ok := modeAliases[modePart]
	if !ok {
		return MusicalKey{}, fmt.Errorf("invalid mode %q", modePart)
	}

	return MusicalKey{Root: root, Mode: mode}, nil
}

// IsValidNote reports whether n is one of the twelve sharp-spelled notes
func IsValidNote(n Note) bool {
	for _, v := range ValidNotes {
		if v == n {
			return true
		}
	}
	return false
}

// SongSpecification describes what the user asked for
type SongSpecification struct {
	Description     string        `json:"description"`
	Genre           Genre         `json:"genre"`
	Mood            Mood          `json:"mood"`
	Tempo           BpmTempo      `json:"tempo"`
	Key             MusicalKey    `json:"key"`
	TimeSignature   TimeSignature `json:"timeSignature"`
	DurationSeconds int           `json:"durationSeconds"`
	HasVocals       bool          `json:"hasVocals"`
	Lyrics          string        `json:"lyrics,omitempty"`
	StyleTags       []string      `json:"styleTags,omitempty"`
}

// WithDefaults fills zero values with the standard defaults
func (s SongSpecification) WithDefaults() SongSpecification {
	if s.Tempo == 0 {
		s.Tempo = DefaultTempo
	}
	if s.Key.Root == "" {
		s.Key = CMajor
	}
	if s.Key.Mode == "" {
		s.Key.Mode = ModeMajor
	}
	if s.TimeSignature.Beats == 0 {
		s.TimeSignature = CommonTime
	}
	if s.DurationSeconds <= 0 {
		s.DurationSeconds = DefaultDurationSeconds
	}
	return s
}

// WantsVocals is true only when vocals were requested and lyrics exist
func (s SongSpecification) WantsVocals() bool {
	return s.HasVocals && strings.TrimSpace(s.Lyrics) != ""
}
