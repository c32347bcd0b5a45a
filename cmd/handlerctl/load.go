package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-ehs-handlers/internal/form"
	"github.com/pesio-ai/be-ehs-handlers/internal/orggraph"
	"github.com/pesio-ai/be-ehs-handlers/internal/workflow"
)

type orgSnapshot struct {
	Departments []orggraph.Department `json:"departments"`
	Users       []orggraph.User       `json:"users"`
}

// yamlToJSON re-encodes a YAML document as JSON so every snapshot decodes
// through the same JSON shapes the service stores.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

func decodeFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data, err := yamlToJSON(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func loadGraph(path string) (*orggraph.Graph, error) {
	var snap orgSnapshot
	if err := decodeFile(path, &snap); err != nil {
		return nil, err
	}
	return orggraph.New(snap.Departments, snap.Users), nil
}

// loadSteps accepts either a bare list of steps or a document with a steps key.
func loadSteps(path string) ([]workflow.Step, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := yamlToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var wrapped struct {
		Steps json.RawMessage `json:"steps"`
	}
	if json.Unmarshal(data, &wrapped) == nil && len(wrapped.Steps) > 0 {
		data = wrapped.Steps
	}
	steps, err := workflow.DecodeSteps(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return steps, nil
}

// loadWorkbook merges a filled-in sheet over data.
func loadWorkbook(path, sheet string, data form.Data) (form.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cells, err := form.ReadWorkbook(f, sheet)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = form.Data{}
	}
	for k, v := range cells {
		data[k] = v
	}
	return data, nil
}

func selectStep(steps []workflow.Step, index int) (workflow.Step, error) {
	if index < 0 || index >= len(steps) {
		return workflow.Step{}, fmt.Errorf("step %d out of range (workflow has %d steps)", index, len(steps))
	}
	return steps[index], nil
}
