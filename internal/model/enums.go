package model

// Genre types
type Genre string

const (
	GenreElectronic Genre = "electronic"
	GenreHiphop     Genre = "hiphop"
	GenrePop        Genre = "pop"
	GenreRock       Genre = "rock"
	GenreJazz       Genre = "jazz"
	GenreClassical  Genre = "classical"
	GenreAmbient    Genre = "ambient"
	GenreCinematic  Genre = "cinematic"
	GenreLofi       Genre = "lofi"
)

var ValidGenres = []Genre{
	GenreElectronic, GenreHiphop, GenrePop, GenreRock, GenreJazz,
	GenreClassical, GenreAmbient, GenreCinematic, GenreLofi,
}

// Mood types
type Mood string

const (
	MoodEnergetic   Mood = "energetic"
	MoodMelancholic Mood = "melancholic"
	MoodUplifting   Mood = "uplifting"
	MoodDark        Mood = "dark"
	MoodPeaceful    Mood = "peaceful"
	MoodAggressive  Mood = "aggressive"
	MoodRomantic    Mood = "romantic"
	MoodChill       Mood = "chill"
)

var ValidMoods = []Mood{
	MoodEnergetic, MoodMelancholic, MoodUplifting, MoodDark,
	MoodPeaceful, MoodAggressive, MoodRomantic, MoodChill,
}

// Root notes
type Note string

const (
	NoteC      Note = "C"
	NoteCSharp Note = "C#"
	NoteD      Note = "D"
	NoteDSharp Note = "D#"
	NoteE      Note = "E"
	NoteF      Note = "F"
	NoteFSharp Note = "F#"
	NoteG      Note = "G"
	NoteGSharp Note = "G#"
	NoteA      Note = "A"
	NoteASharp Note = "A#"
	NoteB      Note = "B"
)

var ValidNotes = []Note{
	NoteC, NoteCSharp, NoteD, NoteDSharp, NoteE, NoteF,
	NoteFSharp, NoteG, NoteGSharp, NoteA, NoteASharp, NoteB,
}

// Modes
type Mode string

const (
	ModeMajor      Mode = "major"
	ModeMinor      Mode = "minor"
	ModeDorian     Mode = "dorian"
	ModePhrygian   Mode = "phrygian"
	ModeLydian     Mode = "lydian"
	ModeMixolydian Mode = "mixolydian"
)

var ValidModes = []Mode{
	ModeMajor, ModeMinor, ModeDorian, ModePhrygian, ModeLydian, ModeMixolydian,
}

// Project status
type ProjectStatus string

const (
	ProjectStatusDraft              ProjectStatus = "draft"
	ProjectStatusComposing          ProjectStatus = "composing"
	ProjectStatusGeneratingMidi     ProjectStatus = "generating_midi"
	ProjectStatusSynthesizingAudio  ProjectStatus = "synthesizing_audio"
	ProjectStatusSynthesizingVocals ProjectStatus = "synthesizing_vocals"
	ProjectStatusMixing             ProjectStatus = "mixing"
	ProjectStatusMastering          ProjectStatus = "mastering"
	ProjectStatusComplete           ProjectStatus = "complete"
	ProjectStatusFailed             ProjectStatus = "failed"
)

// Component types describe what produced an artifact
type ComponentType string

const (
	ComponentTheory    ComponentType = "theory"
	ComponentMidi      ComponentType = "midi"
	ComponentAudio     ComponentType = "audio"
	ComponentVocals    ComponentType = "vocals"
	ComponentMixing    ComponentType = "mixing"
	ComponentMastering ComponentType = "mastering"
	ComponentStems     ComponentType = "stems"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
