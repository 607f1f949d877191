package model

import (
	"encoding/json"
	"time"
)

// QuestionType is the closed set of answer shapes a checklist question can take.
// Validation and report rendering both switch exhaustively on it, so adding a
// type is a single compile-checked change in each place.
type QuestionType string

const (
	TypeText         QuestionType = "TEXT"
	TypePhoto        QuestionType = "PHOTO"
	TypeBoolean      QuestionType = "BOOLEAN"
	TypeNumber       QuestionType = "NUMBER"
	TypeSingleChoice QuestionType = "SINGLE_CHOICE"
)

type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "DRAFT"
	StatusFinalized SubmissionStatus = "FINALIZED"
)

type Template struct {
	ID     string          `json:"id"`
	Name   string          `json:"nome"`
	Active bool            `json:"ativo"`
	Groups []QuestionGroup `json:"grupos"`
}

type QuestionGroup struct {
	ID         string     `json:"id"`
	TemplateID string     `json:"templateId"`
	Name       string     `json:"nome"`
	OrderIndex int        `json:"ordem"`
	Questions  []Question `json:"perguntas"`
}

type Question struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"grupoId"`
	Title       string       `json:"titulo"`
	Description string       `json:"descricao,omitempty"`
	Type        QuestionType `json:"tipo"`
	OrderIndex  int          `json:"ordem"`
	Required    bool         `json:"obrigatoria"`
	Options     []string     `json:"opcoes,omitempty"`
	MultiPhoto  bool         `json:"multiplasFotos,omitempty"`
}

// Scope is the (unit, optional group, template) triple a checklist is answered
// against. Last-submission bookkeeping is updated on every finalize.
type Scope struct {
	ID               string     `json:"id"`
	UnitID           string     `json:"unidadeId"`
	UnitName         string     `json:"unidadeNome"`
	GroupName        string     `json:"grupoNome,omitempty"`
	TemplateID       string     `json:"templateId"`
	LastSubmissionAt *time.Time `json:"ultimoEnvioEm,omitempty"`
	LastSubmissionBy string     `json:"ultimoEnvioPor,omitempty"`
}

type Submission struct {
	ID             string           `json:"id"`
	ScopeID        string           `json:"escopoId"`
	SupervisorID   string           `json:"supervisorId"`
	SupervisorName string           `json:"supervisorNome,omitempty"`
	Status         SubmissionStatus `json:"status"`
	Observations   string           `json:"observacoes,omitempty"`

	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   string   `json:"endereco,omitempty"`
	DeviceID  string   `json:"deviceId,omitempty"`
	UserAgent string   `json:"userAgent,omitempty"`

	StartedAt   time.Time  `json:"iniciadoEm"`
	UpdatedAt   time.Time  `json:"atualizadoEm"`
	SubmittedAt *time.Time `json:"enviadoEm,omitempty"`

	Protocol      string `json:"protocolo,omitempty"`
	IntegrityHash string `json:"hash,omitempty"`

	SignaturePhotoURL   string     `json:"assinaturaFotoUrl,omitempty"`
	ManagerSignatureURL string     `json:"assinaturaGerenteUrl,omitempty"`
	ManagerSignerID     string     `json:"gerenteId,omitempty"`
	ManagerSignerName   string     `json:"gerenteNome,omitempty"`
	ManagerSignedAt     *time.Time `json:"assinadoGerenteEm,omitempty"`

	Answers []Answer `json:"respostas,omitempty"`
}

// Answer holds exactly one populated value slot, matching its question's type,
// plus photo references and an optional 1-5 score usable on any type.
type Answer struct {
	ID           string       `json:"id,omitempty"`
	SubmissionID string       `json:"-"`
	QuestionID   string       `json:"perguntaId"`
	QuestionType QuestionType `json:"tipo"`

	ValueText   *string  `json:"valorTexto,omitempty"`
	ValueBool   *bool    `json:"valorBoolean,omitempty"`
	ValueNumber *float64 `json:"valorNumero,omitempty"`
	ValueOption *string  `json:"valorOpcao,omitempty"`

	PhotoURLs     []string `json:"fotoUrls,omitempty"`
	Score         *int     `json:"nota,omitempty"`
	Justification string   `json:"observacao,omitempty"`
}

// EncodePhotoURLs renders the photo reference column: empty, a bare URL, or a
// JSON list when more than one photo is attached.
func (a Answer) EncodePhotoURLs() string {
	switch len(a.PhotoURLs) {
	case 0:
		return ""
	case 1:
		return a.PhotoURLs[0]
	default:
		b, _ := json.Marshal(a.PhotoURLs)
		return string(b)
	}
}

// DecodePhotoURLs parses a photo reference column written by EncodePhotoURLs.
func DecodePhotoURLs(raw string) []string {
	if raw == "" {
		return nil
	}
	if raw[0] == '[' {
		var urls []string
		if err := json.Unmarshal([]byte(raw), &urls); err == nil {
			return urls
		}
	}
	return []string{raw}
}
