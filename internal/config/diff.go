package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level and speaker names are applied live; every other changed
// section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SpeakersChanged bool
	NewSpeakers     map[int]string

	// RestartRequired names the top-level sections that changed but only take
	// effect after a restart, in a stable order.
	RestartRequired []string
}

// Changed reports whether any difference was found.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SpeakersChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !maps.Equal(old.Speakers, new.Speakers) {
		d.SpeakersChanged = true
		d.NewSpeakers = maps.Clone(new.Speakers)
	}

	// The server section minus the live log level.
	oldSrv, newSrv := old.Server, new.Server
	oldSrv.LogLevel, newSrv.LogLevel = "", ""
	sections := map[string]bool{
		"server":     !reflect.DeepEqual(oldSrv, newSrv),
		"providers":  !reflect.DeepEqual(old.Providers, new.Providers),
		"transcript": old.Transcript != new.Transcript,
		"search":     old.Search != new.Search,
		"retrieval":  old.Retrieval != new.Retrieval,
		"answer":     !reflect.DeepEqual(old.Answer, new.Answer),
	}
	for _, name := range slices.Sorted(maps.Keys(sections)) {
		if sections[name] {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}

	return d
}
