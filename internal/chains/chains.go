// Package chains loads chain definitions from YAML or JSON files.
package chains

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/models"
)

// Parse decodes a chain definition. Input starting with '{' is read as
// JSON, anything else as YAML. The result is normalized and checked for
// structural problems.
func Parse(data []byte) (*models.Chain, error) {
	var c models.Chain
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	Normalize(&c)
	if err := validateStructure(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Normalize trims identifiers and fills per-type defaults.
func Normalize(c *models.Chain) {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	c.EntryID = strings.TrimSpace(c.EntryID)

	for i := range c.Steps {
		step := &c.Steps[i]
		step.ID = strings.TrimSpace(step.ID)
		step.Next = strings.TrimSpace(step.Next)
		step.Type = models.StepType(strings.ToLower(strings.TrimSpace(string(step.Type))))
		step.ResponseType = models.ResponseType(strings.ToLower(strings.TrimSpace(string(step.ResponseType))))

		switch step.Type {
		case models.StepTypePrompt, models.StepTypeTemplate:
			if step.ResponseType == "" {
				step.ResponseType = models.ResponseTypeText
			}
		case models.StepTypeHTTP:
			step.Method = strings.ToUpper(strings.TrimSpace(step.Method))
			if step.Method == "" {
				step.Method = http.MethodGet
			}
			step.URL = strings.TrimSpace(step.URL)
		}
	}
}

// Validate checks a chain strictly: structure, per-type fields, and that
// every next and entryId names an existing step.
func Validate(c *models.Chain) error {
	validation := &models.ValidationErrors{}
	collectStructure(c, validation)
	if len(validation.Errors) == 0 {
		for _, warning := range chain.Warnings(c) {
			validation.AddMessage("", warning)
		}
	}
	return validation.Err()
}

func validateStructure(c *models.Chain) error {
	validation := &models.ValidationErrors{}
	collectStructure(c, validation)
	return validation.Err()
}

func collectStructure(c *models.Chain, validation *models.ValidationErrors) {
	if len(c.Steps) == 0 {
		validation.AddMessage("steps", "at least one step is required")
		return
	}

	for i := range c.Steps {
		step := &c.Steps[i]
		field := fmt.Sprintf("steps[%d]", i)
		if step.ID != "" {
			field = fmt.Sprintf("steps[%s]", step.ID)
		}

		if !step.Type.Valid() {
			validation.AddMessage(field, fmt.Sprintf("unknown step type %q", step.Type))
			continue
		}
		if step.ResponseType != "" && !step.ResponseType.Valid() {
			validation.AddMessage(field, fmt.Sprintf("unknown responseType %q", step.ResponseType))
		}

		switch step.Type {
		case models.StepTypePrompt, models.StepTypeTemplate:
			if strings.TrimSpace(step.Template) == "" {
				validation.AddMessage(field, "template is required")
			}
		case models.StepTypeHTTP:
			if step.URL == "" {
				validation.AddMessage(field, "url is required")
			}
		case models.StepTypeJS:
			if strings.TrimSpace(step.Code) == "" {
				validation.AddMessage(field, "code is required")
			}
		}
	}

	if err := chain.Validate(c); err != nil {
		validation.Add("steps", err)
	}
}
