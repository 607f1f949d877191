package checklist

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fieldscope/vistoria/model"
)

// AnswerPayload is one entry of the `answers` form field: the raw,
// client-shaped value for a single question.
type AnswerPayload struct {
	QuestionID string             `json:"perguntaId"`
	Type       model.QuestionType `json:"tipo"`

	ValueText   *string  `json:"valorTexto"`
	ValueBool   *bool    `json:"valorBoolean"`
	ValueNumber *Numeric `json:"valorNumero"`
	ValueOption *string  `json:"valorOpcao"`

	// Photo URLs already stored from a previous draft save, resent as-is.
	PhotoURLs []string `json:"fotoUrls"`
	PhotoURL  string   `json:"fotoUrl"`

	Score         *int          `json:"nota"`
	Justification Justification `json:"observacao"`
}

// Numeric accepts a JSON number or a numeric string, the two shapes clients
// actually send for NUMBER questions.
type Numeric struct {
	Value float64
	Valid bool
}

func (n *Numeric) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n.Value = v
	n.Valid = !math.IsNaN(v) && !math.IsInf(v, 0)
	return nil
}

func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Justification arrives either as plain text or as a structured
// {motivo, resolucao} pair; either way it is flattened to one text block.
type Justification struct {
	Text string
}

type structuredJustification struct {
	Reason     string `json:"motivo"`
	Resolution string `json:"resolucao"`
}

func (j *Justification) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, "{") {
		var sj structuredJustification
		if err := json.Unmarshal(data, &sj); err != nil {
			return err
		}
		j.Text = flattenJustification(sj.Reason, sj.Resolution)
		return nil
	}
	var plain string
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	j.Text = plain
	return nil
}

func (j Justification) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Text)
}

func flattenJustification(reason, resolution string) string {
	reason = strings.TrimSpace(reason)
	resolution = strings.TrimSpace(resolution)
	switch {
	case reason == "" && resolution == "":
		return ""
	case resolution == "":
		return "Motivo: " + reason
	default:
		return "Motivo: " + reason + "\n\nO que foi feito para resolver: " + resolution
	}
}

// Attachment is one binary part of the multipart submission.
type Attachment struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Actor is the authenticated caller, as extracted from the bearer token.
type Actor struct {
	ID      string
	Name    string
	Role    string
	UnitIDs []string
}

// SaveRequest carries everything one submission attempt brings in.
type SaveRequest struct {
	ScopeID string
	Actor   Actor

	Answers      []AnswerPayload
	Observations string

	Latitude  *float64
	Longitude *float64
	Accuracy  *float64
	Address   string
	DeviceID  string
	UserAgent string
	ClientIP  string

	// Photos holds the indexed foto_<perguntaId>[_<n>] parts, Evidence the
	// foto_anexada_<perguntaId>_<n> parts attachable to any question type.
	Photos   map[string][]Attachment
	Evidence map[string][]Attachment

	Selfie                  *Attachment
	ManagerSignatureDataURL string

	IsDraft bool
	DraftID string
}
