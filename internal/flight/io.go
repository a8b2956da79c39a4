package flight

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a flight document is not a YAML mapping
var ErrNotMapping = errors.New("flight document is not a mapping")

// LoadFlight reads a flight file
func LoadFlight(path string) (Flight, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flight file: %w", err)
	}
	defer f.Close()

	flight, err := DecodeFlight(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return flight, nil
}

// DecodeFlight decodes a single YAML flight document
func DecodeFlight(r io.Reader) (Flight, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode flight: %w", err)
	}
	m, ok := MappingValue(doc)
	if !ok {
		return nil, ErrNotMapping
	}
	return Flight(m), nil
}

// EncodeFlight writes a flight as YAML
func EncodeFlight(w io.Writer, f Flight) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any(f)); err != nil {
		return fmt.Errorf("failed to encode flight: %w", err)
	}
	return enc.Close()
}

// LoadSondes reads a dropsonde inventory file
func LoadSondes(path string) ([]Sonde, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sonde inventory: %w", err)
	}
	defer f.Close()

	sondes, err := DecodeSondes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sondes, nil
}

// DecodeSondes decodes a YAML list of sondes. An empty document yields no
// sondes.
func DecodeSondes(r io.Reader) ([]Sonde, error) {
	var sondes []Sonde
	if err := yaml.NewDecoder(r).Decode(&sondes); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode sondes: %w", err)
	}
	return sondes, nil
}
