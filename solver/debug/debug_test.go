package debug

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"towerfield/solver"
)

func TestRecordCopiesHistory(t *testing.T) {
	var r Record
	r.Init(12)
	hist := []float64{1, 0.1}
	r.Update(solver.Attempt{Stage: "seed", Part: "real", Report: solver.Report{History: hist}})
	hist[0] = 42
	if r.Dofs != 12 || len(r.Attempts) != 1 || r.Attempts[0].History[0] != 1 {
		t.Fatalf("record = %+v", r)
	}
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var back Record
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil || back.Dofs != 12 {
		t.Fatalf("json round trip: %v %+v", err, back)
	}
	// Init 清空上一次的记录
	r.Init(3)
	if len(r.Attempts) != 0 {
		t.Fatalf("attempts not reset")
	}
}

func TestChartsRender(t *testing.T) {
	c := &Charts{}
	c.Init(8)
	c.Update(solver.Attempt{Stage: "seed", Part: "real", Duration: 3 * time.Millisecond,
		Report: solver.Report{Method: "gmres", History: []float64{1, 1e-3, 1e-7}}})
	c.Update(solver.Attempt{Stage: "full", Part: "imag", Report: solver.Report{Method: "direct"}})
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"<html", "echarts", "seed/real", "full/imag"} {
		if !strings.Contains(html, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}
