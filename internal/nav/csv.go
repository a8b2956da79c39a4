package nav

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var csvHeader = []string{"time", "lat", "lon", "alt", "heading", "roll", "pitch"}

// ReadCSV parses a track with the header time,lat,lon,alt,heading,roll,pitch.
// Only time, lat and lon are required; missing columns read as zero. Times are
// RFC3339. The returned track is sorted.
func ReadCSV(r io.Reader) (Track, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Track{}, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"time", "lat", "lon"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var track Track
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := time.Parse(time.RFC3339Nano, record[columns["time"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid time: %w", line, err)
		}
		sample := Sample{Time: ts.UTC()}

		fields := []struct {
			name string
			dst  *float64
		}{
			{"lat", &sample.Lat},
			{"lon", &sample.Lon},
			{"alt", &sample.Alt},
			{"heading", &sample.Heading},
			{"roll", &sample.Roll},
			{"pitch", &sample.Pitch},
		}
		for _, f := range fields {
			idx, ok := columns[f.name]
			if !ok || idx >= len(record) || record[idx] == "" {
				continue
			}
			v, err := strconv.ParseFloat(record[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid %s: %w", line, f.name, err)
			}
			*f.dst = v
		}
		track = append(track, sample)
	}

	track.Sort()
	return track, nil
}

// WriteCSV writes a track in the format ReadCSV understands
func WriteCSV(w io.Writer, track Track) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range track {
		record := []string{
			s.Time.UTC().Format(time.RFC3339Nano),
			formatFloat(s.Lat),
			formatFloat(s.Lon),
			formatFloat(s.Alt),
			formatFloat(s.Heading),
			formatFloat(s.Roll),
			formatFloat(s.Pitch),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
