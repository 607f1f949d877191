package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fieldscope/vistoria/config"
	"github.com/fieldscope/vistoria/log"
	"github.com/fieldscope/vistoria/model"
	"github.com/fieldscope/vistoria/storage"
	"github.com/pkg/errors"
)

const (
	placeholderUnanswered  = "Não respondido"
	placeholderNoPhoto     = "Foto não anexada"
	placeholderBadImage    = "Imagem indisponível"
	placeholderManagerSign = "Assinatura do gerente pendente"
)

// Renderer produces the paginated compliance report for a submission. It is
// read-only and safe to share across concurrent renders.
type Renderer struct {
	Store storage.ObjectStore
	Brand config.Branding

	primary [3]int
	accent  [3]int
}

func New(store storage.ObjectStore, brand config.Branding) *Renderer {
	if brand.CompanyName == "" {
		brand.CompanyName = "Vistoria"
	}
	return &Renderer{
		Store:   store,
		Brand:   brand,
		primary: parseHexColor(brand.PrimaryColor, [3]int{31, 58, 95}),
		accent:  parseHexColor(brand.AccentColor, [3]int{39, 122, 174}),
	}
}

// Render assembles the full document: header and gauge, every group and
// question in declared order, observations, the dual-signature block, then a
// final pass stamping the footer on every page. A single bad photo degrades
// to a placeholder; only document assembly itself can fail.
func (r *Renderer) Render(ctx context.Context, sub *model.Submission, scope model.Scope, tpl model.Template) ([]byte, error) {
	d := newDoc()

	byQuestion := make(map[string]*model.Answer, len(sub.Answers))
	for i := range sub.Answers {
		byQuestion[sub.Answers[i].QuestionID] = &sub.Answers[i]
	}

	r.header(d, sub, scope, tpl)
	r.gauge(d, sub.Answers)

	for _, grp := range tpl.Groups {
		r.groupHeader(d, grp.Name)
		for _, q := range grp.Questions {
			r.question(ctx, d, q, byQuestion[q.ID])
		}
	}

	if sub.Observations != "" {
		r.sectionTitle(d, "Observações Gerais")
		d.writeWrapped(sub.Observations, "", 9.5, 40, 40, 40, 4.6)
		d.spacer(3)
	}

	r.signatures(ctx, d, sub)
	r.footers(d)

	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "assemble document")
	}
	return buf.Bytes(), nil
}

func (r *Renderer) header(d *doc, sub *model.Submission, scope model.Scope, tpl model.Template) {
	pdf := d.pdf
	pdf.SetFillColor(r.primary[0], r.primary[1], r.primary[2])
	pdf.Rect(0, 0, pageW, 26, "F")

	if r.Brand.LogoPath != "" {
		if logo, err := loadLogo(r.Brand.LogoPath); err == nil {
			logo.place(pdf, pageW-marginR-24, 4, 24, 18)
		} else {
			log.Debugf("report logo unavailable: %v", err)
		}
	}

	d.setFont("B", 15)
	pdf.SetTextColor(255, 255, 255)
	pdf.Text(marginL, 11, d.tr(r.Brand.CompanyName))
	d.setFont("", 10)
	pdf.Text(marginL, 18, d.tr("Relatório de Vistoria — "+tpl.Name))
	d.y = 32

	where := scope.UnitName
	if scope.GroupName != "" {
		where += " / " + scope.GroupName
	}
	lines := []string{
		"Unidade: " + where,
		"Responsável: " + sub.SupervisorName,
	}
	if sub.Protocol != "" {
		lines = append(lines, "Protocolo: "+sub.Protocol)
	}
	if sub.SubmittedAt != nil {
		lines = append(lines, "Enviado em: "+sub.SubmittedAt.Format("02/01/2006 15:04"))
	}
	if sub.Address != "" {
		lines = append(lines, "Endereço: "+sub.Address)
	}
	d.setFont("", 9.5)
	pdf.SetTextColor(60, 60, 60)
	d.writeLines(lines, 5)
	d.spacer(3)
}

// gauge draws the aggregate score as a five-segment 0-100% bar with a
// pointer at the exact percentage.
func (r *Renderer) gauge(d *doc, answers []model.Answer) {
	score, ok := AggregateScore(answers)
	if !ok {
		return
	}
	pct := score / 5 * 100
	band := ScoreBand(score)

	d.ensure(22)
	pdf := d.pdf

	d.setFont("B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.Text(marginL, d.y+4, d.tr(fmt.Sprintf("Avaliação geral: %.1f / 5 — %s (%.0f%%)", score, band.Label, pct)))
	d.y += 7

	const barH = 7.0
	segW := contentW / 5
	for i, b := range bands {
		pdf.SetFillColor(b.R, b.G, b.B)
		pdf.Rect(marginL+float64(i)*segW, d.y, segW, barH, "F")
	}

	pointerX := marginL + contentW*pct/100
	pdf.SetDrawColor(20, 20, 20)
	pdf.SetLineWidth(0.8)
	pdf.Line(pointerX, d.y-1.5, pointerX, d.y+barH+1.5)
	pdf.SetLineWidth(0.2)

	d.y += barH + 6
}

func (r *Renderer) sectionTitle(d *doc, title string) {
	d.ensure(10)
	pdf := d.pdf
	d.setFont("B", 11)
	pdf.SetTextColor(r.primary[0], r.primary[1], r.primary[2])
	pdf.Text(marginL, d.y+5, d.tr(title))
	pdf.SetDrawColor(r.accent[0], r.accent[1], r.accent[2])
	pdf.Line(marginL, d.y+6.5, marginL+contentW, d.y+6.5)
	d.y += 10
}

func (r *Renderer) groupHeader(d *doc, name string) {
	r.sectionTitle(d, name)
}

func (r *Renderer) question(ctx context.Context, d *doc, q model.Question, a *model.Answer) {
	d.ensure(12)
	pdf := d.pdf

	titleX := marginL
	if a != nil && a.Score != nil {
		band := ScoreBand(float64(*a.Score))
		pdf.SetFillColor(band.R, band.G, band.B)
		pdf.Circle(marginL+1.8, d.y+3, 1.8, "F")
		titleX = marginL + 5
	}

	d.setFont("B", 10)
	pdf.SetTextColor(30, 30, 30)
	title := q.Title
	for i, line := range d.wrap(title, contentW-(titleX-marginL)) {
		d.ensure(5)
		x := titleX
		if i > 0 {
			x = marginL
		}
		pdf.Text(x, d.y+3.8, d.tr(line))
		d.y += 5
	}

	if q.Description != "" {
		d.writeWrapped(q.Description, "I", 8.5, 110, 110, 110, 4.2)
	}

	r.answerValue(d, q, a)

	if a != nil && a.Justification != "" {
		d.spacer(1)
		d.setFont("B", 9)
		pdf.SetTextColor(80, 80, 80)
		d.ensure(4.5)
		pdf.Text(marginL, d.y+3.5, d.tr("Justificativa:"))
		d.y += 4.5
		d.writeWrapped(a.Justification, "", 9, 60, 60, 60, 4.4)
	}

	if a != nil && len(a.PhotoURLs) > 0 {
		r.photoGrid(ctx, d, a.PhotoURLs)
	}

	d.spacer(3.5)
}

// answerValue renders the type-specific value line, switching exhaustively on
// the question type so a new type must be handled here to compile.
func (r *Renderer) answerValue(d *doc, q model.Question, a *model.Answer) {
	pdf := d.pdf

	value := func(text string, cr, cg, cb int, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		d.setFont(style, 9.5)
		pdf.SetTextColor(cr, cg, cb)
		d.writeLines(d.wrap(text, contentW), 4.6)
	}

	if a == nil {
		value(placeholderUnanswered, 150, 150, 150, false)
		return
	}

	switch q.Type {
	case model.TypeText:
		if a.ValueText == nil {
			value(placeholderUnanswered, 150, 150, 150, false)
			return
		}
		value(*a.ValueText, 40, 40, 40, false)

	case model.TypeBoolean:
		if a.ValueBool == nil {
			value(placeholderUnanswered, 150, 150, 150, false)
			return
		}
		if *a.ValueBool {
			value("Conforme", 46, 164, 79, true)
		} else {
			value("Não conforme", 217, 48, 37, true)
		}

	case model.TypeNumber:
		if a.ValueNumber == nil {
			value(placeholderUnanswered, 150, 150, 150, false)
			return
		}
		value(strconv.FormatFloat(*a.ValueNumber, 'f', -1, 64), 40, 40, 40, false)

	case model.TypeSingleChoice:
		if a.ValueOption == nil {
			value(placeholderUnanswered, 150, 150, 150, false)
			return
		}
		value(*a.ValueOption, 40, 40, 40, false)

	case model.TypePhoto:
		if len(a.PhotoURLs) == 0 {
			value(placeholderNoPhoto, 150, 150, 150, false)
		}
		// the photos themselves render in the shared grid below

	default:
		value(placeholderUnanswered, 150, 150, 150, false)
	}
}

// photoGrid lays photos out two per row, each scaled into its cell with the
// aspect ratio preserved, with a numbered badge when there is more than one.
// A whole row is placed on one page or pushed to the next, never split.
func (r *Renderer) photoGrid(ctx context.Context, d *doc, urls []string) {
	const (
		gap   = 6.0
		cellW = (contentW - gap) / 2
		cellH = 58.0
	)
	pdf := d.pdf
	numbered := len(urls) > 1

	for rowStart := 0; rowStart < len(urls); rowStart += 2 {
		row := urls[rowStart:min(rowStart+2, len(urls))]

		images := make([]*fetchedImage, len(row))
		rowH := 7.0
		for i, url := range row {
			img, err := fetchImage(ctx, r.Store, url)
			if err != nil {
				log.Debugf("report photo unavailable (%s): %v", url, err)
				continue
			}
			images[i] = img
			if _, h := img.fit(cellW, cellH); h > rowH {
				rowH = h
			}
		}

		d.ensure(rowH + 3)
		for i := range row {
			x := marginL + float64(i)*(cellW+gap)
			if images[i] == nil {
				d.setFont("I", 8.5)
				pdf.SetTextColor(150, 150, 150)
				pdf.Text(x, d.y+5, d.tr(placeholderBadImage))
				continue
			}
			images[i].place(pdf, x, d.y, cellW, cellH)
			if numbered {
				pdf.SetFillColor(r.accent[0], r.accent[1], r.accent[2])
				pdf.Circle(x+4, d.y+4, 3, "F")
				d.setFont("B", 8)
				pdf.SetTextColor(255, 255, 255)
				pdf.Text(x+2.9, d.y+5.2, strconv.Itoa(rowStart+i+1))
			}
		}
		d.y += rowH + 3
	}
}

func (r *Renderer) signatures(ctx context.Context, d *doc, sub *model.Submission) {
	r.sectionTitle(d, "Assinaturas")
	d.ensure(44)
	pdf := d.pdf

	const (
		colW = (contentW - 10) / 2
		imgH = 26.0
	)
	drawSignature := func(x float64, url, name, pending string) {
		if url != "" {
			if img, err := fetchImage(ctx, r.Store, url); err == nil {
				w, h := img.fit(colW-10, imgH)
				img.place(pdf, x+(colW-w)/2, d.y+imgH-h, w, h)
			} else {
				log.Debugf("signature image unavailable: %v", err)
			}
		} else if pending != "" {
			d.setFont("I", 8.5)
			pdf.SetTextColor(150, 150, 150)
			pdf.Text(x+8, d.y+imgH-4, d.tr(pending))
		}
		pdf.SetDrawColor(60, 60, 60)
		pdf.Line(x, d.y+imgH+2, x+colW, d.y+imgH+2)
		d.setFont("", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.Text(x, d.y+imgH+7, d.tr(name))
	}

	drawSignature(marginL, sub.SignaturePhotoURL, "Supervisor: "+sub.SupervisorName, "")

	managerName := "Gerente"
	if sub.ManagerSignerName != "" {
		managerName = "Gerente: " + sub.ManagerSignerName
	}
	drawSignature(marginL+colW+10, sub.ManagerSignatureURL, managerName, placeholderManagerSign)

	d.y += imgH + 12
}

// footers stamps every page after rendering completes, since the page count
// is unknown until then.
func (r *Renderer) footers(d *doc) {
	pdf := d.pdf
	generated := time.Now().Format("02/01/2006 15:04")
	total := pdf.PageCount()

	for page := 1; page <= total; page++ {
		pdf.SetPage(page)
		pdf.SetFillColor(r.primary[0], r.primary[1], r.primary[2])
		pdf.Rect(0, pageH-10, pageW, 10, "F")

		d.setFont("", 8)
		pdf.SetTextColor(255, 255, 255)
		pdf.Text(marginL, pageH-4, d.tr("Gerado em "+generated+" — "+r.Brand.CompanyName))

		pageLabel := d.tr("Página " + strconv.Itoa(page))
		pdf.Text(pageW-marginR-pdf.GetStringWidth(pageLabel), pageH-4, pageLabel)
	}
}

func loadLogo(path string) (*fetchedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return validateImage(path, data)
}

func parseHexColor(s string, def [3]int) [3]int {
	if len(s) != 7 || s[0] != '#' {
		return def
	}
	var rgb [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(s[1+i*2:3+i*2], 16, 8)
		if err != nil {
			return def
		}
		rgb[i] = int(v)
	}
	return rgb
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
