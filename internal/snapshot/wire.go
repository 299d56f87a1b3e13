package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// --- Status endpoint payload types ---

type wireSnapshot struct {
	Status   string            `json:"status"`
	Results  *[]wireTaskResult `json:"results"`
	Messages map[string]string `json:"messages"`
}

type wireTaskResult struct {
	UniprotID      string     `json:"uniprot_id"`
	Status         string     `json:"status"`
	Percent        float64    `json:"percent"`
	QFactor        float64    `json:"q_factor"`
	SpaceGroup     string     `json:"space_group"`
	FilesAvailable wireBool   `json:"files_available"`
	PackNumber     wireString `json:"pack_number"`
}

type wireJobStatus struct {
	Status *string `json:"status"`
}

func (w wireSnapshot) toModel() (*models.JobSnapshot, error) {
	if w.Results == nil {
		return nil, errors.New("missing results")
	}

	results := make([]models.TaskResult, 0, len(*w.Results))
	for i, r := range *w.Results {
		if r.UniprotID == "" {
			return nil, fmt.Errorf("result %d: missing uniprot_id", i)
		}
		results = append(results, models.TaskResult{
			UniprotID:      r.UniprotID,
			Status:         models.TaskStatus(r.Status),
			Percent:        r.Percent,
			QFactor:        r.QFactor,
			SpaceGroup:     r.SpaceGroup,
			FilesAvailable: bool(r.FilesAvailable),
			PackNumber:     string(r.PackNumber),
		})
	}

	messages := w.Messages
	if messages == nil {
		messages = map[string]string{}
	}

	return &models.JobSnapshot{
		Status:   models.JobStatus(w.Status),
		Results:  results,
		Messages: messages,
	}, nil
}

// wireBool accepts the Python-rendered "True"/"False" strings as well as JSON booleans.
type wireBool bool

func (b *wireBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case bool:
		*b = wireBool(v)
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			*b = true
		case "false", "":
			*b = false
		default:
			return fmt.Errorf("invalid boolean %q", v)
		}
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// wireString accepts a JSON string or number and keeps its textual form.
type wireString string

func (s *wireString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = wireString(v)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s", data)
	}
	*s = wireString(n.String())
	return nil
}
