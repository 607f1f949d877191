package checklist

import (
	"strings"

	"github.com/fieldscope/vistoria/httpx"
	"github.com/fieldscope/vistoria/model"
)

const (
	msgRequired      = "resposta obrigatória não preenchida"
	msgInvalidOption = "opção inválida"
)

// normalizeAnswer derives the persistable answer for one question from the
// raw payload, applying the per-type rules. newPhotoURLs are the URLs of
// binaries uploaded for this question in this request. A (nil, nil) return
// means the question produced no answer and is skipped.
//
// Final submits (isDraft=false) fail on the first required question without a
// type-appropriate value; draft saves never do.
func normalizeAnswer(q model.Question, p *AnswerPayload, newPhotoURLs []string, isDraft bool) (*model.Answer, error) {
	requiredViolation := func() error {
		if q.Required && !isDraft {
			return httpx.ValidationQuestion(q.ID, q.Title, msgRequired+": "+q.Title)
		}
		return nil
	}

	base := func() *model.Answer {
		a := &model.Answer{QuestionID: q.ID, QuestionType: q.Type}
		if p != nil {
			a.Score = p.Score
			a.Justification = p.Justification.Text
		}
		return a
	}

	switch q.Type {
	case model.TypeText:
		var text string
		if p != nil && p.ValueText != nil {
			text = strings.TrimSpace(*p.ValueText)
		}
		if text == "" {
			return nil, requiredViolation()
		}
		a := base()
		a.ValueText = &text
		return a, nil

	case model.TypeBoolean:
		if p == nil || p.ValueBool == nil {
			if err := requiredViolation(); err != nil {
				return nil, err
			}
			// partial scoring survives draft saves even before the
			// conformance choice is made
			if isDraft && p != nil && p.Score != nil {
				return base(), nil
			}
			return nil, nil
		}
		a := base()
		v := *p.ValueBool
		a.ValueBool = &v
		return a, nil

	case model.TypeNumber:
		if p == nil || p.ValueNumber == nil || !p.ValueNumber.Valid {
			return nil, requiredViolation()
		}
		a := base()
		v := p.ValueNumber.Value
		a.ValueNumber = &v
		return a, nil

	case model.TypeSingleChoice:
		var choice string
		if p != nil && p.ValueOption != nil {
			choice = strings.TrimSpace(*p.ValueOption)
		}
		if choice == "" {
			return nil, requiredViolation()
		}
		if !containsOption(q.Options, choice) {
			return nil, httpx.ValidationQuestion(q.ID, q.Title, msgInvalidOption+": "+choice)
		}
		a := base()
		a.ValueOption = &choice
		return a, nil

	case model.TypePhoto:
		urls := payloadPhotoURLs(p)
		if q.MultiPhoto {
			urls = append(urls, newPhotoURLs...)
		} else if len(newPhotoURLs) > 0 {
			// a fresh upload replaces whatever URL the payload carried
			urls = newPhotoURLs[:1]
		} else if len(urls) > 1 {
			urls = urls[:1]
		}
		if len(urls) == 0 {
			// a required photo question may finalize empty; the UI is
			// trusted to prompt first (soft requirement, see DESIGN.md)
			return nil, nil
		}
		a := base()
		a.PhotoURLs = urls
		return a, nil
	}

	return nil, httpx.Validation("tipo de pergunta desconhecido: %s", q.Type)
}

func payloadPhotoURLs(p *AnswerPayload) []string {
	if p == nil {
		return nil
	}
	urls := make([]string, 0, len(p.PhotoURLs)+1)
	if p.PhotoURL != "" {
		urls = append(urls, p.PhotoURL)
	}
	for _, u := range p.PhotoURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func containsOption(options []string, choice string) bool {
	for _, o := range options {
		if o == choice {
			return true
		}
	}
	return false
}
