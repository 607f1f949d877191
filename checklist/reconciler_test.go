package checklist

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldscope/vistoria/config"
	"github.com/fieldscope/vistoria/database"
	"github.com/fieldscope/vistoria/httpx"
	"github.com/fieldscope/vistoria/model"
	"github.com/fieldscope/vistoria/notify"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	qNome     = "q-nome"
	qConforme = "q-conforme"
	qTemp     = "q-temp"
	qEstado   = "q-estado"
	qFoto     = "q-foto"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.Config{DBUrl: filepath.Join(t.TempDir(), "test.sqlite")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := db.Exec(query, args...)
		require.NoError(t, err)
	}

	exec(`INSERT INTO template (id, name, active) VALUES ('t1', 'Vistoria Padrão', 1)`)
	exec(`INSERT INTO question_group (id, template_id, name, order_index) VALUES ('g1', 't1', 'Geral', 0)`)
	exec(`INSERT INTO question (id, group_id, title, type, order_index, required, options, multi_photo)
	      VALUES (?, 'g1', 'Nome', 'TEXT', 0, 1, '', 0)`, qNome)
	exec(`INSERT INTO question (id, group_id, title, type, order_index, required, options, multi_photo)
	      VALUES (?, 'g1', 'Conforme?', 'BOOLEAN', 1, 1, '', 0)`, qConforme)
	exec(`INSERT INTO question (id, group_id, title, type, order_index, required, options, multi_photo)
	      VALUES (?, 'g1', 'Temperatura', 'NUMBER', 2, 0, '', 0)`, qTemp)
	exec(`INSERT INTO question (id, group_id, title, type, order_index, required, options, multi_photo)
	      VALUES (?, 'g1', 'Estado', 'SINGLE_CHOICE', 3, 0, '["Bom","Ruim"]', 0)`, qEstado)
	exec(`INSERT INTO question (id, group_id, title, type, order_index, required, options, multi_photo)
	      VALUES (?, 'g1', 'Foto da área', 'PHOTO', 4, 0, '', 1)`, qFoto)
	exec(`INSERT INTO scope (id, unit_id, unit_name, template_id) VALUES ('s1', 'u1', 'Unidade Centro', 't1')`)

	return db
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (s *memStore) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects["/mem/"+key] = data
	return "/mem/" + key, nil
}

func (s *memStore) Get(_ context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type recordingNotifier struct {
	events chan notify.Event
}

func (n *recordingNotifier) SubmissionFinalized(_ context.Context, ev notify.Event) error {
	n.events <- ev
	return nil
}

func newTestReconciler(t *testing.T) (*Reconciler, *memStore, *recordingNotifier) {
	store := newMemStore()
	notifier := &recordingNotifier{events: make(chan notify.Event, 4)}
	rc := New(newTestDB(t), store, notifier, "VST", false)
	return rc, store, notifier
}

func manager() Actor {
	return Actor{ID: "mgr-1", Name: "Marina Gestora", Role: "GESTOR"}
}

func binAttachment(name string, data []byte) Attachment {
	return Attachment{
		Filename:    name,
		ContentType: "image/jpeg",
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

func TestSaveDraftNeverRequiresAnswers(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	sub, err := rc.Save(context.Background(), SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, sub.Status)
	assert.Empty(t, sub.Protocol)
	assert.Nil(t, sub.SubmittedAt)
}

func TestFinalizeNamesFirstMissingRequired(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	// both required questions missing: the error must name "Nome", declared
	// first, not "Conforme?"
	_, err := rc.Save(context.Background(), SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		Answers: []AnswerPayload{{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("")}},
	})
	require.Error(t, err)

	apiErr := &httpx.Error{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, httpx.CodeValidation, apiErr.Code)
	assert.Equal(t, qNome, apiErr.QuestionID)
	assert.Equal(t, "Nome", apiErr.QuestionTitle)
}

func TestFinalizeBooleanFalse(t *testing.T) {
	rc, _, notifier := newTestReconciler(t)

	sub, err := rc.Save(context.Background(), SaveRequest{
		ScopeID:  "s1",
		Actor:    manager(),
		ClientIP: "10.0.0.1",
		DeviceID: "dev-1",
		Answers: []AnswerPayload{
			{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")},
			{QuestionID: qConforme, Type: model.TypeBoolean, ValueBool: boolPtr(false)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinalized, sub.Status)
	assert.True(t, strings.HasPrefix(sub.Protocol, "VST-"))
	assert.Len(t, sub.IntegrityHash, 64)
	require.NotNil(t, sub.SubmittedAt)

	stored, err := rc.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, stored.Answers, 2)

	conforme := stored.Answers[1]
	require.NotNil(t, conforme.ValueBool, "false must round-trip, not collapse to null")
	assert.False(t, *conforme.ValueBool)
	assert.Empty(t, conforme.Justification)

	select {
	case ev := <-notifier.events:
		assert.Equal(t, sub.Protocol, ev.Protocol)
		assert.Equal(t, "Unidade Centro", ev.UnitName)
	case <-time.After(2 * time.Second):
		t.Fatal("finalization was never notified")
	}

	// scope bookkeeping updated in the same transaction
	var by string
	require.NoError(t, rc.DB.QueryRow(`SELECT last_submission_by FROM scope WHERE id = 's1'`).Scan(&by))
	assert.Equal(t, "mgr-1", by)
}

func TestDraftMergeIdempotence(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	req := SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Answers: []AnswerPayload{
			{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")},
			{QuestionID: qTemp, Type: model.TypeNumber, ValueNumber: numPtr(21)},
		},
	}

	first, err := rc.Save(ctx, req)
	require.NoError(t, err)
	second, err := rc.Save(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same draft is updated, not duplicated")
	require.Len(t, second.Answers, 2)
	assert.Equal(t, first.Answers[0].ValueText, second.Answers[0].ValueText)

	var count int
	require.NoError(t, rc.DB.QueryRow(`SELECT COUNT(*) FROM answer WHERE submission_id = ?`, first.ID).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPhotoCarryForwardAcrossDraftSaves(t *testing.T) {
	rc, store, _ := newTestReconciler(t)
	ctx := context.Background()

	// first draft uploads one photo
	first, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Photos:  map[string][]Attachment{qFoto: {binAttachment("a.jpg", []byte("img-a"))}},
	})
	require.NoError(t, err)
	require.Len(t, first.Answers, 1)
	require.Len(t, first.Answers[0].PhotoURLs, 1)
	url := first.Answers[0].PhotoURLs[0]

	data, err := store.Get(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, []byte("img-a"), data)

	// second draft resends nothing for the photo question: URL survives
	second, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Answers: []AnswerPayload{{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")}},
	})
	require.NoError(t, err)
	require.Len(t, second.Answers, 2)
	assert.Equal(t, []string{url}, second.Answers[1].PhotoURLs)

	// third draft uploads another photo: multi-photo question appends
	third, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Answers: []AnswerPayload{
			{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")},
			{QuestionID: qFoto, Type: model.TypePhoto, PhotoURLs: []string{url}},
		},
		Photos: map[string][]Attachment{qFoto: {binAttachment("b.jpg", []byte("img-b"))}},
	})
	require.NoError(t, err)
	require.Len(t, third.Answers, 2)
	assert.Len(t, third.Answers[1].PhotoURLs, 2)
	assert.Equal(t, url, third.Answers[1].PhotoURLs[0])
}

func TestEvidencePhotosAttachToAnyType(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	sub, err := rc.Save(context.Background(), SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Answers: []AnswerPayload{{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")}},
		Evidence: map[string][]Attachment{
			qNome: {binAttachment("ev.jpg", []byte("ev"))},
		},
	})
	require.NoError(t, err)
	require.Len(t, sub.Answers, 1)
	assert.Len(t, sub.Answers[0].PhotoURLs, 1)
}

func TestGetDraftScopedToActor(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := rc.Save(ctx, SaveRequest{ScopeID: "s1", Actor: manager(), IsDraft: true})
	require.NoError(t, err)

	mine, err := rc.GetDraft(ctx, "s1", manager())
	require.NoError(t, err)
	require.NotNil(t, mine)

	other, err := rc.GetDraft(ctx, "s1", Actor{ID: "other", Role: "GESTOR"})
	require.NoError(t, err)
	assert.Nil(t, other, "drafts of other actors stay invisible")
}

func TestRestrictedRoleNarrowing(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   Actor{ID: "sup-1", Role: "SUPERVISOR"},
		IsDraft: true,
	})
	apiErr := &httpx.Error{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, httpx.CodeForbiddenNoScope, apiErr.Code)

	_, err = rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   Actor{ID: "sup-1", Role: "SUPERVISOR", UnitIDs: []string{"u9"}},
		IsDraft: true,
	})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, httpx.CodeForbidden, apiErr.Code)

	_, err = rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   Actor{ID: "sup-1", Role: "SUPERVISOR", UnitIDs: []string{"u1"}},
		IsDraft: true,
	})
	assert.NoError(t, err)
}

func TestUnknownScope(t *testing.T) {
	rc, _, _ := newTestReconciler(t)

	_, err := rc.Save(context.Background(), SaveRequest{ScopeID: "nope", Actor: manager(), IsDraft: true})
	apiErr := &httpx.Error{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, httpx.CodeNotFound, apiErr.Code)
}

func TestManagerSignatureNeverTouchesProtocol(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	sub, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		Answers: []AnswerPayload{
			{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")},
			{QuestionID: qConforme, Type: model.TypeBoolean, ValueBool: boolPtr(true)},
		},
	})
	require.NoError(t, err)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("sig"))
	signed, err := rc.AddManagerSignature(ctx, sub.ID, Actor{ID: "ger-1", Name: "Gerente", Role: "GESTOR"}, dataURL)
	require.NoError(t, err)

	assert.NotEmpty(t, signed.ManagerSignatureURL)
	assert.Equal(t, "ger-1", signed.ManagerSignerID)
	assert.NotNil(t, signed.ManagerSignedAt)
	assert.Equal(t, sub.Protocol, signed.Protocol)
	assert.Equal(t, sub.IntegrityHash, signed.IntegrityHash)
}

func TestInlineManagerSignatureSurvivesDraftFinalize(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := rc.Save(ctx, SaveRequest{ScopeID: "s1", Actor: manager(), IsDraft: true})
	require.NoError(t, err)

	// finalizing the existing draft takes the UPDATE path; the inline
	// signature must reach the row, not just the response
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("sig"))
	final, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		Answers: []AnswerPayload{
			{QuestionID: qNome, Type: model.TypeText, ValueText: strPtr("Centro")},
			{QuestionID: qConforme, Type: model.TypeBoolean, ValueBool: boolPtr(true)},
		},
		ManagerSignatureDataURL: dataURL,
	})
	require.NoError(t, err)
	require.NotEmpty(t, final.ManagerSignatureURL)

	stored, err := rc.GetSubmission(ctx, final.ID)
	require.NoError(t, err)
	assert.Equal(t, final.ManagerSignatureURL, stored.ManagerSignatureURL)
}

func TestMultiPhotoUploadsAccumulateWithoutResentURLs(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	// two draft saves each upload one binary and never resend stored URLs;
	// the second upload must append, not replace
	first, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Photos:  map[string][]Attachment{qFoto: {binAttachment("a.jpg", []byte("img-a"))}},
	})
	require.NoError(t, err)
	require.Len(t, first.Answers, 1)
	require.Len(t, first.Answers[0].PhotoURLs, 1)

	second, err := rc.Save(ctx, SaveRequest{
		ScopeID: "s1",
		Actor:   manager(),
		IsDraft: true,
		Photos:  map[string][]Attachment{qFoto: {binAttachment("b.jpg", []byte("img-b"))}},
	})
	require.NoError(t, err)
	require.Len(t, second.Answers, 1)
	assert.Len(t, second.Answers[0].PhotoURLs, 2)
	assert.Equal(t, first.Answers[0].PhotoURLs[0], second.Answers[0].PhotoURLs[0])
}

func TestManagerSignatureRequiresFinalized(t *testing.T) {
	rc, _, _ := newTestReconciler(t)
	ctx := context.Background()

	draft, err := rc.Save(ctx, SaveRequest{ScopeID: "s1", Actor: manager(), IsDraft: true})
	require.NoError(t, err)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("sig"))
	_, err = rc.AddManagerSignature(ctx, draft.ID, manager(), dataURL)
	apiErr := &httpx.Error{}
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, httpx.CodeValidation, apiErr.Code)
}
