package protocol

import (
	"encoding/json"
	"testing"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/montecarlo"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/tuning"
)

func TestDecodeSimulate(t *testing.T) {
	raw := []byte(`{
	  "type":"SIMULATE",
	  "protocol_version":"1.0",
	  "request_id":"r1",
	  "era":"LIMP_2025",
	  "policy":"minimize_lock",
	  "replications":200,
	  "seed":18446744073709551615,
	  "start":{
	    "experience":1308538,
	    "quests":["LOST_CITY"],
	    "points":120,
	    "task":{"state":"active","creature":"MONKEYS","giver":"TURAEL","amount":20}
	  }
	}`)
	m, err := DecodeSimulate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.RequestID != "r1" || m.Replications != 200 || m.Seed != ^uint64(0) || m.Start == nil || m.Start.Task.Amount != 20 {
		t.Fatalf("msg=%+v", m)
	}

	tu, err := m.Tuning(tuning.Defaults())
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	if tu.Era != "LIMP_2025" || tu.Policy != "minimize_lock" || tu.Replications != 200 || tu.ProgressEvery != 500 {
		t.Fatalf("tuning=%+v", tu)
	}
}

func TestDecodeSimulate_RejectsSchema(t *testing.T) {
	cases := map[string]string{
		"type":       `{"type":"HELLO","protocol_version":"1.0"}`,
		"version":    `{"type":"SIMULATE"}`,
		"policy":     `{"type":"SIMULATE","protocol_version":"1.0","policy":"greedy"}`,
		"negative":   `{"type":"SIMULATE","protocol_version":"1.0","replications":-1}`,
		"extra":      `{"type":"SIMULATE","protocol_version":"1.0","bogus":1}`,
		"task state": `{"type":"SIMULATE","protocol_version":"1.0","start":{"experience":1,"task":{"state":"paused","creature":"COWS"}}}`,
		"not json":   `{"type":`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeSimulate([]byte(raw)); err == nil {
				t.Fatalf("accepted %s", raw)
			}
		})
	}
}

func TestSimulateTuning_InvalidKeepsBase(t *testing.T) {
	base := tuning.Defaults()
	m := SimulateMsg{Start: &tuning.StartSpec{Task: tuning.TaskSpec{State: "completed", Creature: "NOT_A_CREATURE"}}}
	got, err := m.Tuning(base)
	if err == nil {
		t.Fatalf("invalid start accepted")
	}
	if got.Start != nil {
		t.Fatalf("base was modified: %+v", got)
	}
}

func TestServerMessagesMatchSchema(t *testing.T) {
	msgs := []any{
		AcceptedMsg{Type: TypeAccepted, ProtocolVersion: Version, BatchID: "b", Tuning: tuning.Defaults()},
		ProgressMsg{Type: TypeProgress, ProtocolVersion: Version, BatchID: "b", Done: 1, Total: 2},
		ReportMsg{Type: TypeReport, ProtocolVersion: Version, BatchID: "b", Report: montecarlo.Report{Replications: 2}},
		NewError("r", ErrBusy, "batch %s running", "b"),
	}
	for _, m := range msgs {
		raw, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("marshal %T: %v", m, err)
		}
		if err := Validate("server_message", raw); err != nil {
			t.Fatalf("%T: %v", m, err)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := DecodeBase([]byte(`{"type":"CANCEL","protocol_version":"1.0"}`))
	if err != nil || b.Type != TypeCancel {
		t.Fatalf("base=%+v err=%v", b, err)
	}
}
