package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PracticeChanged is true if the default mode or spoken threshold changed.
	// Running sessions keep their settings; new sessions pick up the change.
	PracticeChanged bool

	// DialogueChanged is true if the default level or new-word ratio changed.
	DialogueChanged bool

	// VoiceChanged is true if the default TTS voice changed.
	VoiceChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PracticeChanged || d.DialogueChanged || d.VoiceChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Practice != new.Practice {
		d.PracticeChanged = true
	}
	if old.Dialogue != new.Dialogue {
		d.DialogueChanged = true
	}
	if old.Speech != new.Speech {
		d.VoiceChanged = true
	}

	return d
}
