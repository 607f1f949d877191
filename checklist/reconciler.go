package checklist

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldscope/vistoria/httpx"
	"github.com/fieldscope/vistoria/log"
	"github.com/fieldscope/vistoria/model"
	"github.com/fieldscope/vistoria/notify"
	"github.com/fieldscope/vistoria/schema"
	"github.com/fieldscope/vistoria/storage"
	"github.com/google/uuid"
)

// Field roles whose access is narrowed to an explicit unit list. Back-office
// roles see every unit and skip the check.
var restrictedRoles = map[string]bool{
	"SUPERVISOR":  true,
	"ENCARREGADO": true,
}

// Reconciler is the checklist submission state machine: it validates a raw
// submission against the resolved question schema, uploads its media, merges
// it with any open draft and persists the result in one transaction.
type Reconciler struct {
	DB             *sql.DB
	Store          storage.ObjectStore
	Notifier       notify.Notifier
	ProtocolPrefix string
	Debug          bool

	now func() time.Time
}

func New(db *sql.DB, store storage.ObjectStore, notifier notify.Notifier, protocolPrefix string, debug bool) *Reconciler {
	return &Reconciler{
		DB:             db,
		Store:          store,
		Notifier:       notifier,
		ProtocolPrefix: protocolPrefix,
		Debug:          debug,
		now:            time.Now,
	}
}

// GetDraft returns the actor's own open draft for the scope, answers
// included, or nil when there is none. Other actors' drafts stay invisible.
func (rc *Reconciler) GetDraft(ctx context.Context, scopeID string, actor Actor) (*model.Submission, error) {
	if actor.ID == "" {
		return nil, httpx.Unauthenticated("usuário não identificado")
	}

	draft, err := findDraft(ctx, rc.DB, scopeID, actor.ID, "")
	if err != nil {
		return nil, httpx.Internal(err, "db.find_draft")
	}
	if draft == nil {
		return nil, nil
	}

	draft.Answers, err = loadAnswers(ctx, rc.DB, draft.ID)
	if err != nil {
		return nil, httpx.Internal(err, "db.get_answers")
	}
	return draft, nil
}

// Save runs one submission attempt end to end: resolve schema, narrow
// authorization, normalize and validate answers, upload media concurrently,
// then merge against any open draft and persist atomically. On finalize it
// derives the protocol/hash pair and fires the notification after commit.
func (rc *Reconciler) Save(ctx context.Context, req SaveRequest) (*model.Submission, error) {
	if req.Actor.ID == "" {
		return nil, httpx.Unauthenticated("usuário não identificado")
	}

	scope, tpl, err := schema.Resolve(ctx, rc.DB, req.ScopeID)
	if err != nil {
		return nil, err
	}

	if err := authorize(req.Actor, scope); err != nil {
		return nil, err
	}

	media, err := uploadMedia(ctx, rc.Store, req)
	if err != nil {
		return nil, httpx.Internal(err, "storage.upload")
	}

	payloads := make(map[string]*AnswerPayload, len(req.Answers))
	for i := range req.Answers {
		payloads[req.Answers[i].QuestionID] = &req.Answers[i]
	}

	// walk the schema in declared order so a finalize with several missing
	// required questions always names the first one
	var answers []model.Answer
	multiPhoto := make(map[string]bool)
	for _, grp := range tpl.Groups {
		for _, q := range grp.Questions {
			if q.MultiPhoto {
				multiPhoto[q.ID] = true
			}
			a, err := normalizeAnswer(q, payloads[q.ID], media.photos[q.ID], req.IsDraft)
			if err != nil {
				return nil, err
			}

			if evidence := media.evidence[q.ID]; len(evidence) > 0 {
				if a == nil {
					a = &model.Answer{QuestionID: q.ID, QuestionType: q.Type}
				}
				a.PhotoURLs = append(a.PhotoURLs, evidence...)
			}

			if a == nil {
				if q.Type == model.TypePhoto && q.Required && !req.IsDraft {
					// soft requirement: the UI prompts for the photo, the
					// engine only records that it finalized without one
					log.Warnf("required photo question %q finalized without photo", q.Title)
				}
				rc.trace("answer skipped: question=%s", q.ID)
				continue
			}

			rc.trace("answer normalized: question=%s type=%s photos=%d", q.ID, q.Type, len(a.PhotoURLs))
			answers = append(answers, *a)
		}
	}

	now := rc.now()

	draft, err := findDraft(ctx, rc.DB, scope.ID, req.Actor.ID, req.DraftID)
	if err != nil {
		return nil, httpx.Internal(err, "db.find_draft")
	}

	var sub *model.Submission
	if draft != nil {
		sub = draft
	} else {
		sub = &model.Submission{
			ID:           uuid.NewString(),
			ScopeID:      scope.ID,
			SupervisorID: req.Actor.ID,
			StartedAt:    now,
		}
	}
	sub.SupervisorName = req.Actor.Name
	sub.Observations = req.Observations
	sub.Latitude = req.Latitude
	sub.Longitude = req.Longitude
	sub.Accuracy = req.Accuracy
	sub.Address = req.Address
	sub.DeviceID = req.DeviceID
	sub.UserAgent = req.UserAgent
	sub.UpdatedAt = now
	if media.selfie != "" {
		sub.SignaturePhotoURL = media.selfie
	}
	if media.manager != "" {
		sub.ManagerSignatureURL = media.manager
	}

	if req.IsDraft {
		sub.Status = model.StatusDraft
	} else {
		sub.Status = model.StatusFinalized
		sub.SubmittedAt = &now

		canonical := canonicalString(now, req.Actor.ID, scope.UnitID, tpl.ID, scope.ID, req.ClientIP, req.DeviceID)
		sub.IntegrityHash = integrityHash(canonical)
		sub.Protocol = protocolCode(rc.ProtocolPrefix, now, sub.IntegrityHash)
		rc.trace("finalizing: canonical=%s protocol=%s", canonical, sub.Protocol)
	}

	err = rc.persist(ctx, sub, answers, multiPhoto, draft != nil)
	if err != nil {
		return nil, err
	}

	if req.IsDraft {
		sub.Answers, err = loadAnswers(ctx, rc.DB, sub.ID)
		if err != nil {
			return nil, httpx.Internal(err, "db.get_answers")
		}
	} else {
		rc.dispatchFinalized(scope, sub)
	}

	return sub, nil
}

// persist writes the submission and its reconciled answer set in one
// transaction; nothing observes a half-written answer set.
func (rc *Reconciler) persist(ctx context.Context, sub *model.Submission, answers []model.Answer, multiPhoto map[string]bool, existing bool) error {
	tx, err := rc.DB.BeginTx(ctx, nil)
	if err != nil {
		return httpx.Internal(err, "db.begin_tx")
	}
	defer tx.Rollback()

	if existing {
		prev, err := loadAnswers(ctx, tx, sub.ID)
		if err != nil {
			return httpx.Internal(err, "db.get_answers")
		}
		answers = mergeAnswers(prev, answers, multiPhoto)
		rc.trace("merged answers: prev=%d merged=%d", len(prev), len(answers))

		if err := updateSubmission(ctx, tx, sub); err != nil {
			return httpx.Internal(err, "db.update_submission")
		}
	} else {
		if err := insertSubmission(ctx, tx, sub); err != nil {
			return httpx.Internal(err, "db.insert_submission")
		}
	}

	if err := replaceAnswers(ctx, tx, sub.ID, answers, uuid.NewString); err != nil {
		return httpx.Internal(err, "db.replace_answers")
	}

	if sub.Status == model.StatusFinalized {
		if err := touchScope(ctx, tx, sub.ScopeID, sub.SupervisorID, sub.UpdatedAt); err != nil {
			return httpx.Internal(err, "db.touch_scope")
		}
	}

	if err := tx.Commit(); err != nil {
		return httpx.Internal(err, "db.commit")
	}
	return nil
}

// dispatchFinalized notifies downstream consumers off the request path.
// Failures are logged and never reach the caller.
func (rc *Reconciler) dispatchFinalized(scope model.Scope, sub *model.Submission) {
	ev := notify.Event{
		SubmissionID:   sub.ID,
		Protocol:       sub.Protocol,
		ScopeID:        scope.ID,
		UnitName:       scope.UnitName,
		SupervisorID:   sub.SupervisorID,
		SupervisorName: sub.SupervisorName,
		SubmittedAt:    *sub.SubmittedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := rc.Notifier.SubmissionFinalized(ctx, ev); err != nil {
			log.Warnf("finalization notify failed: %v", err)
		}
	}()
}

// AddManagerSignature stores the late manager signature on a finalized
// submission. This is the one defined exception to post-finalize
// immutability; the protocol and hash are never recomputed here.
func (rc *Reconciler) AddManagerSignature(ctx context.Context, submissionID string, actor Actor, dataURL string) (*model.Submission, error) {
	if actor.ID == "" {
		return nil, httpx.Unauthenticated("usuário não identificado")
	}
	if dataURL == "" {
		return nil, httpx.Validation("assinatura do gerente ausente")
	}

	sub, err := loadSubmission(ctx, rc.DB, submissionID)
	if err != nil {
		return nil, httpx.Internal(err, "db.get_submission")
	}
	if sub == nil {
		return nil, httpx.NotFound("resposta não encontrada")
	}
	if sub.Status != model.StatusFinalized {
		return nil, httpx.Validation("resposta ainda não finalizada")
	}

	url, err := putDataURL(ctx, rc.Store, dataURL)
	if err != nil {
		return nil, httpx.Internal(err, "storage.upload_signature")
	}

	now := rc.now()
	sub.ManagerSignatureURL = url
	sub.ManagerSignerID = actor.ID
	sub.ManagerSignerName = actor.Name
	sub.ManagerSignedAt = &now

	if err := setManagerSignature(ctx, rc.DB, sub); err != nil {
		return nil, httpx.Internal(err, "db.set_manager_signature")
	}
	return sub, nil
}

// GetSubmission loads a fully-populated submission for rendering.
func (rc *Reconciler) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := loadSubmission(ctx, rc.DB, id)
	if err != nil {
		return nil, httpx.Internal(err, "db.get_submission")
	}
	if sub == nil {
		return nil, httpx.NotFound("resposta não encontrada")
	}
	sub.Answers, err = loadAnswers(ctx, rc.DB, sub.ID)
	if err != nil {
		return nil, httpx.Internal(err, "db.get_answers")
	}
	return sub, nil
}

// authorize narrows restricted field roles to their configured unit list,
// distinguishing "no units configured" from "this unit excluded".
func authorize(actor Actor, scope model.Scope) error {
	if !restrictedRoles[actor.Role] {
		return nil
	}
	if len(actor.UnitIDs) == 0 {
		return httpx.ForbiddenNoScope("nenhuma unidade configurada para o seu acesso")
	}
	for _, id := range actor.UnitIDs {
		if id == scope.UnitID {
			return nil
		}
	}
	return httpx.Forbidden("unidade fora do seu escopo de acesso")
}

func (rc *Reconciler) trace(format string, args ...any) {
	if rc.Debug {
		log.Debugf(format, args...)
	}
}
