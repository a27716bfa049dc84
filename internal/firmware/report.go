package firmware

import (
	"bytes"
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"
)

const reportRootKey = "firmware"

const (
	LabelUboot     = "u-boot"
	LabelKernel    = "kernel"
	LabelToolchain = "toolchain"
	LabelSDK       = "sdk"
	LabelLibc      = "libc"
	LabelMainApp   = "main-app"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrFormatMismatch    = errors.New("format mismatch")
)

type Fact struct {
	Label string
	Value string
}

// Report is the ordered set of facts produced by one Build call. It is not
// modified once Build returns.
type Report struct {
	facts    []Fact
	dominant ProcessSample
	hasMain  bool
}

func (report *Report) add(label, value string) {
	for i := range report.facts {
		if report.facts[i].Label == label {
			report.facts[i].Value = value
			return
		}
	}
	report.facts = append(report.facts, Fact{Label: label, Value: value})
}

func (report *Report) Facts() []Fact {
	return append([]Fact(nil), report.facts...)
}

func (report *Report) Get(label string) (string, bool) {
	for _, fact := range report.facts {
		if fact.Label == label {
			return fact.Value, true
		}
	}
	return "", false
}

func (report *Report) Len() int {
	return len(report.facts)
}

// Dominant returns the process the main-app fact was derived from.
func (report *Report) Dominant() (ProcessSample, bool) {
	if !report.hasMain {
		return ProcessSample{PID: InvalidPID}, false
	}
	return report.dominant, true
}

// Map flattens the facts, losing order.
func (report *Report) Map() map[string]string {
	values := make(map[string]string, len(report.facts))
	for _, fact := range report.facts {
		values[fact.Label] = fact.Value
	}
	return values
}

func (report *Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"` + reportRootKey + `":{`)
	for i, fact := range report.facts {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fact.Label)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fact.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteString("}}")

	return buf.Bytes(), nil
}

func (report *Report) MarshalYAML() (interface{}, error) {
	inner := &yaml.Node{Kind: yaml.MappingNode}
	for _, fact := range report.facts {
		inner.Content = append(inner.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fact.Label},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fact.Value},
		)
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: reportRootKey},
			inner,
		},
	}, nil
}
