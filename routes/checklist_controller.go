package routes

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/fieldscope/vistoria/app"
	"github.com/fieldscope/vistoria/checklist"
	"github.com/fieldscope/vistoria/httpx"
	"github.com/fieldscope/vistoria/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const maxSubmissionMemory = 64 << 20

// SaveChecklistResponse handles the multipart submission endpoint: form
// fields plus binary parts named foto_<perguntaId>[_<n>] for photo answers,
// foto_anexada_<perguntaId>_<n> for attached evidence on any question type,
// and assinaturaFoto for the supervisor selfie.
func SaveChecklistResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxSubmissionMemory); err != nil {
			httpx.RenderError(w, r, httpx.Validation("corpo multipart inválido"), app.Debug)
			return
		}

		scopeID := strings.TrimSpace(r.FormValue("escopoId"))
		if scopeID == "" {
			httpx.RenderError(w, r, httpx.Validation("escopoId obrigatório"), app.Debug)
			return
		}

		var answers []checklist.AnswerPayload
		if raw := r.FormValue("answers"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &answers); err != nil {
				httpx.RenderError(w, r, httpx.Validation("campo answers malformado"), app.Debug)
				return
			}
		}

		req := checklist.SaveRequest{
			ScopeID:      scopeID,
			Actor:        actorFrom(r),
			Answers:      answers,
			Observations: strings.TrimSpace(r.FormValue("observacoes")),
			Latitude:     parseFloatField(r.FormValue("lat")),
			Longitude:    parseFloatField(r.FormValue("lng")),
			Accuracy:     parseFloatField(r.FormValue("accuracy")),
			Address:      strings.TrimSpace(r.FormValue("endereco")),
			DeviceID:     strings.TrimSpace(r.FormValue("deviceId")),
			UserAgent:    r.UserAgent(),
			ClientIP:     clientIP(r),
			IsDraft:      parseBoolField(r.FormValue("isDraft")),
			DraftID:      strings.TrimSpace(r.FormValue("respostaId")),

			ManagerSignatureDataURL: r.FormValue("assinaturaGerenteDataUrl"),
		}
		req.Photos, req.Evidence, req.Selfie = collectAttachments(r.MultipartForm)

		sub, err := app.Checklist.Save(r.Context(), req)
		if err != nil {
			httpx.RenderError(w, r, err, app.Debug)
			return
		}

		render.JSON(w, r, sub)
	}
}

// GetChecklistDraft returns the caller's own open draft for a scope, or null.
func GetChecklistDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scopeID := r.URL.Query().Get("escopoId")
		if scopeID == "" {
			httpx.RenderError(w, r, httpx.Validation("escopoId obrigatório"), app.Debug)
			return
		}

		draft, err := app.Checklist.GetDraft(r.Context(), scopeID, actorFrom(r))
		if err != nil {
			httpx.RenderError(w, r, err, app.Debug)
			return
		}

		render.JSON(w, r, map[string]any{"rascunho": draft})
	}
}

// AddManagerSignature stores the late manager signature on a finalized
// submission.
func AddManagerSignature(app app.App) http.HandlerFunc {
	type body struct {
		DataURL string `json:"assinaturaGerenteDataUrl"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var b body
		if err := render.DecodeJSON(r.Body, &b); err != nil {
			httpx.RenderError(w, r, httpx.Validation("corpo JSON inválido"), app.Debug)
			return
		}

		sub, err := app.Checklist.AddManagerSignature(r.Context(), chi.URLParam(r, "id"), actorFrom(r), b.DataURL)
		if err != nil {
			httpx.RenderError(w, r, err, app.Debug)
			return
		}

		render.JSON(w, r, sub)
	}
}

// GetChecklistReport renders the compliance report for a submission and
// streams it as a PDF.
func GetChecklistReport(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := app.Checklist.GetSubmission(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.RenderError(w, r, err, app.Debug)
			return
		}

		scope, tpl, err := schema.Load(r.Context(), app.DB, sub.ScopeID)
		if err != nil {
			httpx.RenderError(w, r, err, app.Debug)
			return
		}

		doc, err := app.Reports.Render(r.Context(), sub, scope, tpl)
		if err != nil {
			httpx.RenderError(w, r, httpx.Internal(err, "report.render"), app.Debug)
			return
		}

		name := sub.Protocol
		if name == "" {
			name = sub.ID
		}
		w.Header().Set("content-type", "application/pdf")
		w.Header().Set("content-disposition", `inline; filename="`+name+`.pdf"`)
		w.Write(doc)
	}
}

// collectAttachments splits the multipart file parts into per-question photo
// lists (indexed parts walked from 0 until the first gap), evidence lists and
// the supervisor selfie.
func collectAttachments(form *multipart.Form) (photos, evidence map[string][]checklist.Attachment, selfie *checklist.Attachment) {
	photos = map[string][]checklist.Attachment{}
	evidence = map[string][]checklist.Attachment{}
	if form == nil {
		return
	}

	indexedPhotos := map[string]map[int]checklist.Attachment{}
	indexedEvidence := map[string]map[int]checklist.Attachment{}

	for key, files := range form.File {
		if len(files) == 0 {
			continue
		}
		att := asAttachment(files[0])

		switch {
		case key == "assinaturaFoto":
			selfie = &att

		case strings.HasPrefix(key, "foto_anexada_"):
			qid, idx, ok := splitIndexed(strings.TrimPrefix(key, "foto_anexada_"))
			if !ok {
				continue
			}
			addIndexed(indexedEvidence, qid, idx, att)

		case strings.HasPrefix(key, "foto_"):
			rest := strings.TrimPrefix(key, "foto_")
			if qid, idx, ok := splitIndexed(rest); ok {
				addIndexed(indexedPhotos, qid, idx, att)
			} else {
				addIndexed(indexedPhotos, rest, 0, att)
			}
		}
	}

	for qid, byIdx := range indexedPhotos {
		photos[qid] = walkIndexed(byIdx)
	}
	for qid, byIdx := range indexedEvidence {
		evidence[qid] = walkIndexed(byIdx)
	}
	return
}

func asAttachment(fh *multipart.FileHeader) checklist.Attachment {
	return checklist.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}

// splitIndexed recognizes a trailing _<n> index on a part name. Question ids
// are UUIDs and never end in _<digits> themselves; an id that did would be
// read as an index here.
func splitIndexed(rest string) (qid string, idx int, ok bool) {
	cut := strings.LastIndex(rest, "_")
	if cut < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[cut+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return rest[:cut], n, true
}

func addIndexed(dst map[string]map[int]checklist.Attachment, qid string, idx int, att checklist.Attachment) {
	if dst[qid] == nil {
		dst[qid] = map[int]checklist.Attachment{}
	}
	if _, taken := dst[qid][idx]; taken {
		// foto_<qid> and foto_<qid>_0 both map to 0; keep the first seen
		idxs := make([]int, 0, len(dst[qid]))
		for i := range dst[qid] {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		idx = idxs[len(idxs)-1] + 1
	}
	dst[qid][idx] = att
}

// walkIndexed orders parts 0,1,2,... stopping at the first missing index.
func walkIndexed(byIdx map[int]checklist.Attachment) []checklist.Attachment {
	var atts []checklist.Attachment
	for i := 0; ; i++ {
		att, ok := byIdx[i]
		if !ok {
			break
		}
		atts = append(atts, att)
	}
	return atts
}

func parseFloatField(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseBoolField(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "sim":
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
