package schema

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/fieldscope/vistoria/httpx"
	"github.com/fieldscope/vistoria/model"
	"github.com/pkg/errors"
)

// Resolve loads the scope and its template for a submission attempt. A
// missing scope or an inactive template aborts the whole attempt with
// NOT_FOUND.
func Resolve(ctx context.Context, db *sql.DB, scopeID string) (model.Scope, model.Template, error) {
	scope, tpl, err := Load(ctx, db, scopeID)
	if err != nil {
		return scope, tpl, err
	}
	if !tpl.Active {
		return scope, tpl, httpx.NotFound("checklist desativado")
	}
	return scope, tpl, nil
}

// Load fetches the scope and its template with groups and questions in
// ascending order-index sequence, regardless of the template's active flag.
// Report rendering uses it directly so old submissions stay renderable after
// their template is retired.
func Load(ctx context.Context, db *sql.DB, scopeID string) (model.Scope, model.Template, error) {
	scope := model.Scope{}
	tpl := model.Template{}

	var active bool
	err := db.QueryRowContext(ctx, `
		SELECT
			sc.id, sc.unit_id, sc.unit_name, sc.group_name, sc.template_id,
			sc.last_submission_at, sc.last_submission_by,
			t.name, t.active
		FROM scope sc
		JOIN template t ON (t.id = sc.template_id)
		WHERE sc.id = ?`,
		scopeID,
	).Scan(
		&scope.ID, &scope.UnitID, &scope.UnitName, &scope.GroupName, &scope.TemplateID,
		&scope.LastSubmissionAt, &scope.LastSubmissionBy,
		&tpl.Name, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return scope, tpl, httpx.NotFound("escopo não encontrado")
	}
	if err != nil {
		return scope, tpl, httpx.Internal(err, "db.get_scope")
	}
	tpl.ID = scope.TemplateID
	tpl.Active = active

	rows, err := db.QueryContext(ctx, `
		SELECT
			g.id, g.name, g.order_index,
			q.id, q.title, q.description, q.type, q.order_index,
			q.required, q.options, q.multi_photo
		FROM question_group g
		JOIN question q ON (q.group_id = g.id)
		WHERE g.template_id = ?
		ORDER BY g.order_index, q.order_index`,
		tpl.ID,
	)
	if err != nil {
		return scope, tpl, httpx.Internal(err, "db.get_questions")
	}
	defer rows.Close()

	for rows.Next() {
		g := model.QuestionGroup{TemplateID: tpl.ID}
		q := model.Question{}
		var opts string
		err = rows.Scan(
			&g.ID, &g.Name, &g.OrderIndex,
			&q.ID, &q.Title, &q.Description, &q.Type, &q.OrderIndex,
			&q.Required, &opts, &q.MultiPhoto,
		)
		if err != nil {
			return scope, tpl, httpx.Internal(err, "db.get_questions.scan")
		}
		q.GroupID = g.ID

		if opts != "" {
			if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
				return scope, tpl, httpx.Internal(err, "db.get_questions.parse_options")
			}
		}

		if n := len(tpl.Groups); n > 0 && tpl.Groups[n-1].ID == g.ID {
			tpl.Groups[n-1].Questions = append(tpl.Groups[n-1].Questions, q)
		} else {
			g.Questions = []model.Question{q}
			tpl.Groups = append(tpl.Groups, g)
		}
	}
	if err := rows.Err(); err != nil {
		return scope, tpl, httpx.Internal(err, "db.get_questions.rows")
	}

	return scope, tpl, nil
}
