// Package compile merges flight files into one document nested as
// platform -> flight_id -> flight, with a stable key order.
package compile

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yegors/flightseg/internal/flight"
)

// FlightKeyPriority lists the flight keys written first, in this order.
// Remaining keys follow alphabetically.
var FlightKeyPriority = []string{
	"flight_id",
	"name",
	"nickname",
	"date",
	"platform",
	"mission",
	"takeoff",
	"landing",
	"flight_report",
	"contacts",
	"remarks",
}

// SegmentKeyPriority lists the segment keys written first, in this order
var SegmentKeyPriority = []string{
	"segment_id",
	"name",
	"start",
	"end",
	"kinds",
	"irregularities",
}

// Compile merges the flights. Platforms and flight ids are sorted, segments
// are ordered by start time. A later flight with the same platform and id
// replaces an earlier one.
func Compile(flights []flight.Flight) (*yaml.Node, error) {
	byPlatform := make(map[string]map[string]flight.Flight)
	for i, f := range flights {
		platform, ok := f.Platform()
		if !ok {
			return nil, fmt.Errorf("flight %d: platform is missing", i)
		}
		id, ok := f.FlightID()
		if !ok {
			return nil, fmt.Errorf("flight %d: flight_id is missing", i)
		}
		if byPlatform[platform] == nil {
			byPlatform[platform] = make(map[string]flight.Flight)
		}
		byPlatform[platform][id] = f
	}

	root := mappingNode()
	for _, platform := range sortedKeys(byPlatform) {
		platformNode := mappingNode()
		for _, id := range sortedKeys(byPlatform[platform]) {
			flightNode, err := flightNode(byPlatform[platform][id])
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", platform, id, err)
			}
			appendPair(platformNode, id, flightNode)
		}
		appendPair(root, platform, platformNode)
	}

	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}, nil
}

// Write encodes a compiled document
func Write(w io.Writer, doc *yaml.Node) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return enc.Close()
}

func flightNode(f flight.Flight) (*yaml.Node, error) {
	segments := slices.Clone(f.Segments())
	sortSegments(segments)

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, seg := range segments {
		node, err := orderedNode(seg, SegmentKeyPriority)
		if err != nil {
			return nil, err
		}
		seq.Content = append(seq.Content, node)
	}

	node := mappingNode()
	for _, key := range orderKeys(f, FlightKeyPriority) {
		var value *yaml.Node
		if key == flight.KeySegments {
			value = seq
		} else {
			var err error
			if value, err = encodeValue(f[key]); err != nil {
				return nil, fmt.Errorf("key %s: %w", key, err)
			}
		}
		appendPair(node, key, value)
	}
	return node, nil
}

func orderedNode(m map[string]any, priority []string) (*yaml.Node, error) {
	node := mappingNode()
	for _, key := range orderKeys(m, priority) {
		value, err := encodeValue(m[key])
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		appendPair(node, key, value)
	}
	return node, nil
}

// orderKeys returns the priority keys present in m followed by the other
// keys in alphabetical order
func orderKeys[V any](m map[string]V, priority []string) []string {
	keys := make([]string, 0, len(m))
	inPriority := make(map[string]bool, len(priority))
	for _, k := range priority {
		inPriority[k] = true
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range m {
		if !inPriority[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// sortSegments orders segments by start. Segments without a valid start
// keep their relative order after the others.
func sortSegments(segments []flight.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		a, aOK := segments[i].Start()
		b, bOK := segments[j].Start()
		switch {
		case aOK && bOK:
			return a.Before(b)
		default:
			return aOK && !bOK
		}
	})
}

func encodeValue(v any) (*yaml.Node, error) {
	if t, ok := v.(time.Time); ok {
		v = t.UTC()
	}
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, err
	}
	return &node, nil
}

func mappingNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
