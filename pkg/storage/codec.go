package storage

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/jobsuite/pkg/core"
)

// PropertyPrefix marks record keys that hold job properties.
const PropertyPrefix = "prop."

// Record field names. The fixed fields never start with PropertyPrefix.
const (
	fieldJobID         = "jobId"
	fieldState         = "state"
	fieldProgress      = "progress"
	fieldNote          = "note"
	fieldStartTime     = "startTime"
	fieldEndTime       = "endTime"
	fieldLastActivity  = "lastActivity"
	fieldStopRequested = "stopRequested"
	fieldError         = "error"
)

// EncodeRecord renders the current attempt of s as a flat YAML mapping.
// Prior attempts are stored as separate records and are not included.
func EncodeRecord(s *core.Status) ([]byte, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		m.Content = append(m.Content, str(key), value)
	}

	add(fieldJobID, str(s.JobID))
	add(fieldState, str(string(s.State)))
	add(fieldProgress, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatProgress(s.Progress)})
	add(fieldNote, str(s.Note))
	add(fieldStartTime, timeNode(s.StartTime))
	add(fieldEndTime, timeNode(s.EndTime))
	add(fieldLastActivity, timeNode(s.LastActivity))
	add(fieldStopRequested, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool",
		Value: strconv.FormatBool(s.StopRequested)})
	add(fieldError, str(s.Error))

	for _, key := range s.Properties.Keys() {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range s.Properties.Get(key) {
			seq.Content = append(seq.Content, str(v))
		}
		add(PropertyPrefix+key, seq)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{m}}); err != nil {
		return nil, fmt.Errorf("encode status record: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode status record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a record written by EncodeRecord. Unknown keys are
// ignored. Empty or truncated input yields core.ErrCorruptRecord.
func DecodeRecord(data []byte) (*core.Status, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty record", core.ErrCorruptRecord)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptRecord, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: not a mapping", core.ErrCorruptRecord)
	}
	m := doc.Content[0]

	s := &core.Status{State: core.StateIdle}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		if err := decodeField(s, key, val); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", core.ErrCorruptRecord, key, err)
		}
	}
	if s.JobID == "" {
		return nil, fmt.Errorf("%w: missing %s", core.ErrCorruptRecord, fieldJobID)
	}
	return s, nil
}

func decodeField(s *core.Status, key string, val *yaml.Node) error {
	var err error
	switch key {
	case fieldJobID:
		err = val.Decode(&s.JobID)
	case fieldState:
		var raw string
		if err = val.Decode(&raw); err == nil {
			s.State, err = core.ParseState(raw)
		}
	case fieldProgress:
		var p float64
		if err = val.Decode(&p); err == nil {
			s.SetProgress(p)
		}
	case fieldNote:
		err = val.Decode(&s.Note)
	case fieldStartTime:
		s.StartTime, err = parseTime(val)
	case fieldEndTime:
		s.EndTime, err = parseTime(val)
	case fieldLastActivity:
		s.LastActivity, err = parseTime(val)
	case fieldStopRequested:
		err = val.Decode(&s.StopRequested)
	case fieldError:
		err = val.Decode(&s.Error)
	default:
		if !strings.HasPrefix(key, PropertyPrefix) {
			return nil
		}
		var values []string
		if err = val.Decode(&values); err == nil {
			s.Properties.Set(strings.TrimPrefix(key, PropertyPrefix), values...)
		}
	}
	return err
}

func formatProgress(p float64) string {
	v := strconv.FormatFloat(p, 'f', -1, 64)
	if !strings.Contains(v, ".") {
		v += ".0"
	}
	return v
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func timeNode(t time.Time) *yaml.Node {
	if t.IsZero() {
		return str("")
	}
	return str(t.UTC().Format(time.RFC3339Nano))
}

func parseTime(val *yaml.Node) (time.Time, error) {
	var raw string
	if err := val.Decode(&raw); err != nil {
		return time.Time{}, err
	}
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
