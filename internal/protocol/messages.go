package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

// SIMULATE (client -> server). Zero fields keep the server's configured value.
type SimulateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`

	Era           string            `json:"era,omitempty"`
	Policy        string            `json:"policy,omitempty"`
	Replications  int               `json:"replications,omitempty"`
	Workers       int               `json:"workers,omitempty"`
	Seed          uint64            `json:"seed,omitempty"`
	MaxSteps      int               `json:"max_steps,omitempty"`
	ProgressEvery int               `json:"progress_every,omitempty"`
	Start         *tuning.StartSpec `json:"start,omitempty"`
}

// CANCEL (client -> server) stops the running batch of this connection.
type CancelMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
}

// ACCEPTED (server -> client)
type AcceptedMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	RequestID       string        `json:"request_id,omitempty"`
	BatchID         string        `json:"batch_id"`
	Tuning          tuning.Tuning `json:"tuning"`
}

// PROGRESS (server -> client)
type ProgressMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	BatchID         string `json:"batch_id"`
	Done            int    `json:"done"`
	Total           int    `json:"total"`
	Successes       int    `json:"successes"`
	Failures        int    `json:"failures"`
	StepLimited     int    `json:"step_limited"`
	Violations      int    `json:"violations"`
}

// REPORT (server -> client)
type ReportMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	RequestID       string            `json:"request_id,omitempty"`
	BatchID         string            `json:"batch_id"`
	Report          montecarlo.Report `json:"report"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	BatchID         string `json:"batch_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, format string, args ...any) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         fmt.Sprintf(format, args...),
	}
}

// Tuning overlays the request on base and validates the result.
func (m SimulateMsg) Tuning(base tuning.Tuning) (tuning.Tuning, error) {
	t := base
	if m.Era != "" {
		t.Era = m.Era
	}
	if m.Policy != "" {
		t.Policy = m.Policy
	}
	if m.Replications != 0 {
		t.Replications = m.Replications
	}
	if m.Workers != 0 {
		t.Workers = m.Workers
	}
	if m.Seed != 0 {
		t.Seed = m.Seed
	}
	if m.MaxSteps != 0 {
		t.MaxSteps = m.MaxSteps
	}
	if m.ProgressEvery != 0 {
		t.ProgressEvery = m.ProgressEvery
	}
	if m.Start != nil {
		st := *m.Start
		t.Start = &st
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return base, err
	}
	return t, nil
}

//go:embed schemas/*.json
var schemaFiles embed.FS

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

// Schema compiles (once) an embedded schema, e.g. "simulate".
func Schema(name string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s, nil
	}
	raw, err := schemaFiles.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	url := "mem://protocol/" + name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	schemaCache[name] = s
	return s, nil
}

// Validate checks raw JSON against an embedded schema.
func Validate(name string, raw []byte) error {
	s, err := Schema(name)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}

// DecodeSimulate validates and decodes a SIMULATE message.
func DecodeSimulate(raw []byte) (SimulateMsg, error) {
	var m SimulateMsg
	if err := Validate("simulate", raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, err
	}
	return m, nil
}
