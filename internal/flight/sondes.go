package flight

import (
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Sonde is one entry of the dropsonde inventory (sondes.yaml)
type Sonde struct {
	SondeID    string    `json:"sonde_id" yaml:"sonde_id"`
	LaunchTime time.Time `json:"launch_time" yaml:"launch_time"`
	Platform   string    `json:"platform" yaml:"platform"`
	Flag       string    `json:"flag" yaml:"flag"`
}

// UnmarshalYAML accepts launch times written either as YAML timestamps or as
// quoted strings
func (s *Sonde) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		SondeID    string `yaml:"sonde_id"`
		LaunchTime any    `yaml:"launch_time"`
		Platform   string `yaml:"platform"`
		Flag       string `yaml:"flag"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	t, ok := timeValue(raw.LaunchTime)
	if !ok {
		return fmt.Errorf("sonde %s: invalid launch_time %v", raw.SondeID, raw.LaunchTime)
	}
	*s = Sonde{
		SondeID:    raw.SondeID,
		LaunchTime: t,
		Platform:   raw.Platform,
		Flag:       raw.Flag,
	}
	return nil
}

// SondesByFlag groups the sondes of one segment window by quality flag
type SondesByFlag map[string][]Sonde

// Count returns the number of sondes across all flags
func (s SondesByFlag) Count() int {
	n := 0
	for _, sondes := range s {
		n += len(sondes)
	}
	return n
}

// FirstLaunch returns the earliest launch time across all flags
func (s SondesByFlag) FirstLaunch() (time.Time, bool) {
	var first time.Time
	found := false
	for _, sondes := range s {
		for _, sonde := range sondes {
			if !found || sonde.LaunchTime.Before(first) {
				first = sonde.LaunchTime
				found = true
			}
		}
	}
	return first, found
}

// IDSets returns flag -> set of sonde ids, dropping flags without sondes
func (s SondesByFlag) IDSets() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(s))
	for flag, sondes := range s {
		if len(sondes) == 0 {
			continue
		}
		ids := make(map[string]struct{}, len(sondes))
		for _, sonde := range sondes {
			ids[sonde.SondeID] = struct{}{}
		}
		out[flag] = ids
	}
	return out
}

// FilterPlatform keeps the sondes launched from the given platform
func FilterPlatform(sondes []Sonde, platform string) []Sonde {
	var out []Sonde
	for _, s := range sondes {
		if s.Platform == platform {
			out = append(out, s)
		}
	}
	return out
}

// GroupByFlag selects the sondes launched in [start, end) and groups them by
// flag. Flags without sondes are absent from the result. Within a flag the
// sondes keep their inventory order.
func GroupByFlag(sondes []Sonde, start, end time.Time) SondesByFlag {
	out := SondesByFlag{}
	for _, s := range sondes {
		if s.LaunchTime.Before(start) || !s.LaunchTime.Before(end) {
			continue
		}
		out[s.Flag] = append(out[s.Flag], s)
	}
	return out
}

// SortByLaunch orders sondes by launch time, then id
func SortByLaunch(sondes []Sonde) {
	sort.SliceStable(sondes, func(i, j int) bool {
		if sondes[i].LaunchTime.Equal(sondes[j].LaunchTime) {
			return sondes[i].SondeID < sondes[j].SondeID
		}
		return sondes[i].LaunchTime.Before(sondes[j].LaunchTime)
	})
}
