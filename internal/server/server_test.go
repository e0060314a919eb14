package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/config"
	"github.com/DanielBronsky/cnpf-feeder/internal/logger"
	"github.com/DanielBronsky/cnpf-feeder/internal/store/boltstore"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

const testSecret = "test-secret"

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeExporter struct {
	title string
	table [][]string
	err   error
}

func (f *fakeExporter) ExportRoster(_ context.Context, title string, table [][]string) error {
	f.title, f.table = title, table
	return f.err
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T, exp *fakeExporter) *testAPI {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	codec, err := auth.NewCodec(testSecret)
	require.NoError(t, err)
	d := Deps{
		Config: config.Config{AuthSecret: testSecret},
		Store:  st,
		Codec:  codec,
		Logger: logger.Discard(),
		Now:    func() time.Time { return testNow },
	}
	if exp != nil {
		d.Exporter = exp
	}
	return &testAPI{t: t, handler: Handler(d)}
}

func (a *testAPI) do(method, path, cookie, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) json(method, path, cookie string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	return a.do(method, path, cookie, "application/json", r)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c.Value
		}
	}
	t.Fatalf("no session cookie in %v", rec.Header())
	return ""
}

// signUp registers a user and returns its session cookie and id.
func (a *testAPI) signUp(username string) (string, string) {
	a.t.Helper()
	rec := a.json(http.MethodPost, "/auth/register", "", map[string]string{
		"email":           username + "@example.com",
		"username":        username,
		"password":        "password123",
		"passwordConfirm": "password123",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode(a.t, rec)["user"].(map[string]any)
	return sessionCookie(a.t, rec), user["id"].(string)
}

type filePart struct {
	field, name, contentType string
	data                     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func photo(i int) filePart {
	return filePart{field: "photos", name: fmt.Sprintf("p%d.png", i), contentType: "image/png", data: []byte(fmt.Sprintf("PNG-%d", i))}
}

func (a *testAPI) createReport(cookie string, photos int) string {
	a.t.Helper()
	files := make([]filePart, photos)
	for i := range files {
		files[i] = photo(i)
	}
	ct, body := multipartBody(a.t, map[string]string{"title": "Morning pike", "text": "Caught a pike at dawn"}, files...)
	rec := a.do(http.MethodPost, "/reports", cookie, ct, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(a.t, rec)["id"].(string)
}

func competitionBody() map[string]any {
	return map[string]any{
		"title":            "Spring cup",
		"location":         "Lake Beloe",
		"startDate":        "2025-06-01",
		"endDate":          "2025-06-02",
		"tours":            []map[string]string{{"date": "2025-06-01", "time": "07:00"}},
		"openingDate":      "2025-04-01",
		"openingTime":      "09:00",
		"individualFormat": true,
		"teamFormat":       true,
		"teamLimit":        1,
	}
}

func (a *testAPI) createCompetition(cookie string, body map[string]any) string {
	a.t.Helper()
	rec := a.json(http.MethodPost, "/competitions", cookie, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(a.t, rec)["id"].(string)
}

func team(name string) map[string]any {
	return map[string]any{
		"type":     "team",
		"teamName": name,
		"participants": []map[string]string{
			{"firstName": "Ion", "lastName": "Rusu"},
			{"firstName": "Ana", "lastName": "Lupu"},
			{"firstName": "Dan", "lastName": "Ceban"},
		},
	}
}

func individual() map[string]any {
	return map[string]any{
		"type":         "individual",
		"participants": []map[string]string{{"firstName": "Ion", "lastName": "Rusu"}},
	}
}

func TestRegisterFirstUserIsAdmin(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	user, _ := api.signUp("bob")

	me := decode(t, api.do(http.MethodGet, "/auth/me", admin, "", nil))["user"].(map[string]any)
	assert.Equal(t, true, me["isAdmin"])
	me = decode(t, api.do(http.MethodGet, "/auth/me", user, "", nil))["user"].(map[string]any)
	assert.Equal(t, false, me["isAdmin"])
	assert.Nil(t, me["avatarUrl"])

	anon := decode(t, api.do(http.MethodGet, "/auth/me", "", "", nil))
	assert.Nil(t, anon["user"])

	rec := api.json(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "ALICE@example.com", "username": "other", "password": "password123", "passwordConfirm": "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.json(http.MethodPost, "/auth/register", "", map[string]string{
		"email": "nope", "username": "a", "password": "short", "passwordConfirm": "other",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "password")
}

func TestLoginAndLogout(t *testing.T) {
	api := newTestAPI(t, nil)
	api.signUp("alice")

	rec := api.json(http.MethodPost, "/auth/login", "", map[string]string{"login": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.json(http.MethodPost, "/auth/login", "", map[string]string{"login": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, sessionCookie(t, rec))

	rec = api.do(http.MethodPost, "/auth/logout", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestTamperedCookieIsAnonymous(t *testing.T) {
	api := newTestAPI(t, nil)
	cookie, _ := api.signUp("alice")
	rec := api.do(http.MethodGet, "/auth/me", cookie+"x", "", nil)
	assert.Nil(t, decode(t, rec)["user"])
	assert.Equal(t, http.StatusUnauthorized, api.createReportRaw(cookie+"x").Code)
}

func (a *testAPI) createReportRaw(cookie string) *httptest.ResponseRecorder {
	ct, body := multipartBody(a.t, map[string]string{"title": "Morning pike", "text": "x"})
	return a.do(http.MethodPost, "/reports", cookie, ct, body)
}

func TestProfileAndPassword(t *testing.T) {
	api := newTestAPI(t, nil)
	alice, aliceID := api.signUp("alice")
	api.signUp("bob")

	ct, body := multipartBody(t, map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPatch, "/user/me", alice, ct, body).Code)

	avatar := filePart{field: "avatar", name: "a.gif", contentType: "image/gif", data: []byte("GIF89a")}
	ct, body = multipartBody(t, map[string]string{"username": "alicia"}, avatar)
	rec := api.do(http.MethodPatch, "/user/me", alice, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/user/avatar/"+aliceID, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "GIF89a", rec.Body.String())

	rec = api.json(http.MethodPost, "/user/me/password", alice, map[string]string{
		"currentPassword": "not-my-password", "newPassword": "newpassword1", "newPasswordConfirm": "newpassword1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.json(http.MethodPost, "/user/me/password", alice, map[string]string{
		"currentPassword": "password123", "newPassword": "newpassword1", "newPasswordConfirm": "newpassword1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.json(http.MethodPost, "/auth/login", "", map[string]string{"login": "alicia", "password": "newpassword1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodPatch, "/user/me", "", map[string]string{"username": "x"}).Code)
}

func TestReportOwnership(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	bob, _ := api.signUp("bob")
	carol, _ := api.signUp("carol")

	id := api.createReport(bob, 0)

	rec := api.json(http.MethodPatch, "/reports/"+id, carol, map[string]string{"title": "Not mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/reports/"+id, carol, "", nil).Code)

	list := decode(t, api.do(http.MethodGet, "/reports", carol, "", nil))["reports"].([]any)
	require.Len(t, list, 1)
	item := list[0].(map[string]any)
	assert.Equal(t, false, item["canEdit"])
	assert.Equal(t, "bob", item["author"].(map[string]any)["username"])

	assert.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/reports/"+id, admin, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/reports/"+id, "", "", nil).Code)
}

func TestReportPhotoLimit(t *testing.T) {
	api := newTestAPI(t, nil)
	bob, _ := api.signUp("bob")

	files := make([]filePart, 11)
	for i := range files {
		files[i] = photo(i)
	}
	ct, body := multipartBody(t, map[string]string{"title": "Too many", "text": "photos"}, files...)
	rec := api.do(http.MethodPost, "/reports", bob, ct, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "photos")

	id := api.createReport(bob, 10)
	ct, body = multipartBody(t, nil, photo(11))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPatch, "/reports/"+id, bob, ct, body).Code)

	ct, body = multipartBody(t, map[string]string{"removePhoto": "0"}, photo(11))
	assert.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/reports/"+id, bob, ct, body).Code)

	notImage := filePart{field: "photos", name: "x.txt", contentType: "text/plain", data: []byte("hi")}
	ct, body = multipartBody(t, map[string]string{"title": "Bad file", "text": "photos"}, notImage)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/reports", bob, ct, body).Code)
}

func TestReportPhotoBytes(t *testing.T) {
	api := newTestAPI(t, nil)
	bob, _ := api.signUp("bob")
	id := api.createReport(bob, 2)

	rec := api.do(http.MethodGet, "/reports/"+id+"/photos/1", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "PNG-1", rec.Body.String())

	for _, path := range []string{
		"/reports/" + id + "/photos/2",
		"/reports/" + id + "/photos/-1",
		"/reports/" + id + "/photos/abc",
		"/reports/not-an-id/photos/0",
		"/reports/not-an-id",
	} {
		assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, "", "", nil).Code, path)
	}
}

func TestReportPatchKeepsUnsentFields(t *testing.T) {
	api := newTestAPI(t, nil)
	bob, _ := api.signUp("bob")
	id := api.createReport(bob, 2)

	rec := api.json(http.MethodPatch, "/reports/"+id, bob, map[string]string{"title": "Evening pike"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rep := decode(t, api.do(http.MethodGet, "/reports/"+id, "", "", nil))["report"].(map[string]any)
	assert.Equal(t, "Evening pike", rep["title"])
	assert.Equal(t, "Caught a pike at dawn", rep["text"])
	assert.EqualValues(t, 2, rep["photosCount"])

	ct, body := multipartBody(t, map[string]string{"removeAllPhotos": "1"}, photo(7))
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, "/reports/"+id, bob, ct, body).Code)
	rep = decode(t, api.do(http.MethodGet, "/reports/"+id, "", "", nil))["report"].(map[string]any)
	assert.EqualValues(t, 0, rep["photosCount"])
	assert.Equal(t, "Evening pike", rep["title"])
}

func TestReportTextStoredAsSubmitted(t *testing.T) {
	api := newTestAPI(t, nil)
	bob, _ := api.signUp("bob")
	text := "Used hooks size<8 and a 3<x<5 cm lure, bait: <worms> & corn &amp; peas"
	rec := api.json(http.MethodPost, "/reports", bob, map[string]string{"title": "Lures", "text": text})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	rep := decode(t, api.do(http.MethodGet, "/reports/"+id, "", "", nil))["report"].(map[string]any)
	assert.Equal(t, text, rep["text"])
}

func TestReportListLimit(t *testing.T) {
	api := newTestAPI(t, nil)
	bob, _ := api.signUp("bob")
	for i := 0; i < 3; i++ {
		api.createReport(bob, 0)
	}
	list := decode(t, api.do(http.MethodGet, "/reports?limit=2", "", "", nil))["reports"].([]any)
	assert.Len(t, list, 2)
	list = decode(t, api.do(http.MethodGet, "/reports?limit=500", "", "", nil))["reports"].([]any)
	assert.Len(t, list, 3)
}

func TestCompetitionsAdminOnly(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	bob, _ := api.signUp("bob")

	assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodPost, "/competitions", "", competitionBody()).Code)
	assert.Equal(t, http.StatusForbidden, api.json(http.MethodPost, "/competitions", bob, competitionBody()).Code)

	noFormat := competitionBody()
	noFormat["individualFormat"] = false
	noFormat["teamFormat"] = false
	rec := api.json(http.MethodPost, "/competitions", admin, noFormat)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["fields"], "format")

	for _, fee := range []string{"Inf", "+Inf", "1e400", "NaN", "-1"} {
		bad := competitionBody()
		bad["fee"] = fee
		rec := api.json(http.MethodPost, "/competitions", admin, bad)
		require.Equal(t, http.StatusBadRequest, rec.Code, fee)
		assert.Contains(t, decode(t, rec)["fields"], "fee")
	}

	id := api.createCompetition(admin, competitionBody())
	assert.Equal(t, http.StatusForbidden, api.json(http.MethodPatch, "/competitions/"+id, bob, map[string]string{"title": "Mine"}).Code)

	rec = api.json(http.MethodPatch, "/competitions/"+id, admin, map[string]string{"title": "Summer cup"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	comp := decode(t, api.do(http.MethodGet, "/competitions/"+id, "", "", nil))["competition"].(map[string]any)
	assert.Equal(t, "Summer cup", comp["title"])
	assert.Equal(t, "Lake Beloe", comp["location"])
	assert.EqualValues(t, 1, comp["teamLimit"])
	assert.Equal(t, true, comp["registrationOpen"])

	rec = api.json(http.MethodPatch, "/competitions/"+id, admin, map[string]string{"endDate": "2025-05-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := decode(t, api.do(http.MethodGet, "/competitions", "", "", nil))["competitions"].([]any)
	assert.Len(t, list, 1)
}

func TestCompetitionFeeStaysEncodable(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	id := api.createCompetition(admin, competitionBody())

	rec := api.json(http.MethodPatch, "/competitions/"+id, admin, map[string]string{"fee": "Inf"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.json(http.MethodPatch, "/competitions/"+id, admin, map[string]any{"fee": 150.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/competitions", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)["competitions"].([]any)
	require.Len(t, list, 1)
	assert.EqualValues(t, 150.5, list[0].(map[string]any)["fee"])
}

func TestRegistrationRules(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	bob, _ := api.signUp("bob")
	carol, _ := api.signUp("carol")
	id := api.createCompetition(admin, competitionBody())
	path := "/competitions/" + id + "/registrations"

	assert.Equal(t, http.StatusUnauthorized, api.json(http.MethodPost, path, "", individual()).Code)

	rec := api.json(http.MethodPost, path, bob, team("Pike hunters"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	regID := decode(t, rec)["id"].(string)

	assert.Equal(t, http.StatusConflict, api.json(http.MethodPost, path, bob, individual()).Code)
	assert.Equal(t, http.StatusConflict, api.json(http.MethodPost, path, carol, team("Carp kings")).Code, "team limit")

	short := team("Two only")
	short["participants"] = short["participants"].([]map[string]string)[:2]
	assert.Equal(t, http.StatusBadRequest, api.json(http.MethodPost, path, carol, short).Code)

	require.Equal(t, http.StatusCreated, api.json(http.MethodPost, path, carol, individual()).Code)

	list := decode(t, api.do(http.MethodGet, path, carol, "", nil))
	regs := list["registrations"].([]any)
	require.Len(t, regs, 2)
	assert.Nil(t, list["csvUrl"])
	assert.Equal(t, false, regs[0].(map[string]any)["canEdit"])

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, "/registrations/"+regID, carol, "", nil).Code)
	rec = api.json(http.MethodPatch, "/registrations/"+regID, bob, map[string]string{"teamName": "Zander squad"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/registrations/"+regID, admin, "", nil).Code)

	require.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/competitions/"+id, admin, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, "", "", nil).Code)
}

func TestRegistrationClosedBeforeOpening(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	body := competitionBody()
	body["openingDate"] = "2025-05-01"
	body["openingTime"] = "18:00"
	id := api.createCompetition(admin, body)

	rec := api.json(http.MethodPost, "/competitions/"+id+"/registrations", admin, individual())
	assert.Equal(t, http.StatusConflict, rec.Code)
	comp := decode(t, api.do(http.MethodGet, "/competitions/"+id, "", "", nil))["competition"].(map[string]any)
	assert.Equal(t, false, comp["registrationOpen"])
}

func TestRegistrationsCSV(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	bob, _ := api.signUp("bob")
	id := api.createCompetition(admin, competitionBody())
	require.Equal(t, http.StatusCreated, api.json(http.MethodPost, "/competitions/"+id+"/registrations", bob, team("Pike hunters")).Code)

	csvPath := "/competitions/" + id + "/registrations.csv"
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, csvPath, "", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, csvPath, bob, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, csvPath+"?token=deadbeef", "", "", nil).Code)

	rec := api.do(http.MethodGet, csvPath, admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "type,team,first_name"))
	assert.Contains(t, lines[1], "Pike hunters")
	assert.Contains(t, lines[1], "bob")

	listing := decode(t, api.do(http.MethodGet, "/competitions/"+id+"/registrations", admin, "", nil))
	csvURL := listing["csvUrl"].(string)
	assert.Contains(t, csvURL, util.HMACSHA256Hex(testSecret, "export:"+id))
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, csvURL, "", "", nil).Code)
}

func TestExportRegistrations(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	id := api.createCompetition(admin, competitionBody())
	rec := api.do(http.MethodPost, "/competitions/"+id+"/registrations/export", admin, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	exp := &fakeExporter{}
	api = newTestAPI(t, exp)
	admin, _ = api.signUp("alice")
	id = api.createCompetition(admin, competitionBody())
	rec = api.do(http.MethodPost, "/competitions/"+id+"/registrations/export", admin, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, exp.title, body["sheet"])
	assert.EqualValues(t, 0, body["rows"])
	require.Len(t, exp.table, 1)

	exp.err = errors.New("quota exceeded")
	rec = api.do(http.MethodPost, "/competitions/"+id+"/registrations/export", admin, "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdminUsers(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, adminID := api.signUp("alice")
	bob, bobID := api.signUp("bob")

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/admin/users", bob, "", nil).Code)

	users := decode(t, api.do(http.MethodGet, "/admin/users", admin, "", nil))["users"].([]any)
	require.Len(t, users, 2)
	assert.NotContains(t, users[0], "passwordHash")

	rec := api.json(http.MethodPatch, "/admin/users/"+adminID, admin, map[string]bool{"isAdmin": false})
	assert.Equal(t, http.StatusConflict, rec.Code, "last admin")
	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, "/admin/users/"+adminID, admin, "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, api.json(http.MethodPatch, "/admin/users/"+bobID, admin, map[string]string{}).Code)

	require.Equal(t, http.StatusOK, api.json(http.MethodPatch, "/admin/users/"+bobID, admin, map[string]bool{"isAdmin": true}).Code)
	rec = api.json(http.MethodPatch, "/admin/users/"+adminID, bob, map[string]bool{"isAdmin": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user := decode(t, api.do(http.MethodGet, "/admin/users/"+adminID, bob, "", nil))["user"].(map[string]any)
	assert.Equal(t, false, user["isAdmin"])

	require.Equal(t, http.StatusOK, api.do(http.MethodDelete, "/admin/users/"+adminID, bob, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/admin/users/"+adminID, bob, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/admin/users/zzz", bob, "", nil).Code)
}

func TestChat(t *testing.T) {
	api := newTestAPI(t, nil)
	admin, _ := api.signUp("alice")
	api.createReport(admin, 1)
	api.createCompetition(admin, competitionBody())

	reply := decode(t, api.do(http.MethodGet, "/chat?q=pike", "", "", nil))
	results := reply["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "report", results[0].(map[string]any)["type"])
	assert.Equal(t, true, results[0].(map[string]any)["hasPhotos"])

	reply = decode(t, api.do(http.MethodGet, "/chat?q=competitions", "", "", nil))
	assert.Len(t, reply["results"], 1)

	reply = decode(t, api.do(http.MethodGet, "/chat", "", "", nil))
	assert.NotEmpty(t, reply["message"])
	assert.Empty(t, reply["results"])
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(http.MethodGet, "/healthz", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/nowhere", "", "", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, api.do(http.MethodPut, "/reports", "", "", nil).Code)

	rec = api.do(http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cnpf_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
