package routes

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filePart(name string) []*multipart.FileHeader {
	return []*multipart.FileHeader{{
		Filename: name,
		Header:   textproto.MIMEHeader{"Content-Type": {"image/jpeg"}},
	}}
}

func TestCollectAttachments(t *testing.T) {
	form := &multipart.Form{File: map[string][]*multipart.FileHeader{
		"foto_q1":           filePart("single.jpg"),
		"foto_q2_0":         filePart("first.jpg"),
		"foto_q2_1":         filePart("second.jpg"),
		"foto_anexada_q1_0": filePart("evidence.jpg"),
		"assinaturaFoto":    filePart("selfie.jpg"),
		"outro_campo":       filePart("ignored.jpg"),
	}}

	photos, evidence, selfie := collectAttachments(form)

	require.Len(t, photos["q1"], 1)
	assert.Equal(t, "single.jpg", photos["q1"][0].Filename)
	assert.Equal(t, "image/jpeg", photos["q1"][0].ContentType)

	require.Len(t, photos["q2"], 2)
	assert.Equal(t, "first.jpg", photos["q2"][0].Filename)
	assert.Equal(t, "second.jpg", photos["q2"][1].Filename)

	require.Len(t, evidence["q1"], 1)
	assert.Equal(t, "evidence.jpg", evidence["q1"][0].Filename)

	require.NotNil(t, selfie)
	assert.Equal(t, "selfie.jpg", selfie.Filename)
}

func TestCollectAttachmentsNilForm(t *testing.T) {
	photos, evidence, selfie := collectAttachments(nil)
	assert.Empty(t, photos)
	assert.Empty(t, evidence)
	assert.Nil(t, selfie)
}

func TestSplitIndexed(t *testing.T) {
	qid, idx, ok := splitIndexed("q1_3")
	require.True(t, ok)
	assert.Equal(t, "q1", qid)
	assert.Equal(t, 3, idx)

	_, _, ok = splitIndexed("q1")
	assert.False(t, ok)

	_, _, ok = splitIndexed("q1_abc")
	assert.False(t, ok)

	_, _, ok = splitIndexed("q1_-1")
	assert.False(t, ok)
}

func TestWalkIndexedStopsAtGap(t *testing.T) {
	form := &multipart.Form{File: map[string][]*multipart.FileHeader{
		"foto_q1_0": filePart("a.jpg"),
		"foto_q1_1": filePart("b.jpg"),
		"foto_q1_3": filePart("after-gap.jpg"),
	}}

	photos, _, _ := collectAttachments(form)
	require.Len(t, photos["q1"], 2, "indexes walk 0,1,2,... and stop at the first gap")
	assert.Equal(t, "a.jpg", photos["q1"][0].Filename)
	assert.Equal(t, "b.jpg", photos["q1"][1].Filename)
}

func TestParseFloatField(t *testing.T) {
	v := parseFloatField(" -23.56 ")
	require.NotNil(t, v)
	assert.InDelta(t, -23.56, *v, 1e-9)

	assert.Nil(t, parseFloatField(""))
	assert.Nil(t, parseFloatField("abc"))
}

func TestParseBoolField(t *testing.T) {
	assert.True(t, parseBoolField("true"))
	assert.True(t, parseBoolField("1"))
	assert.True(t, parseBoolField(" Sim "))
	assert.False(t, parseBoolField("false"))
	assert.False(t, parseBoolField(""))
}

func TestClientIP(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.9:51234", Header: http.Header{}}
	assert.Equal(t, "10.0.0.9", clientIP(r))

	r.RemoteAddr = "[::1]:51234"
	assert.Equal(t, "::1", clientIP(r))

	r.RemoteAddr = "10.0.0.9"
	assert.Equal(t, "10.0.0.9", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}
