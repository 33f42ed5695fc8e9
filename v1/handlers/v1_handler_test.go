package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uyenet/membership-backend/v1/models"
	"github.com/uyenet/membership-backend/v1/services"
	authutils "github.com/uyenet/membership-backend/v1/utils"
)

func newTestHandler(t *testing.T) (*V1Handler, *http.ServeMux) {
	t.Helper()
	db := services.SetupSQLiteTestDB(t)
	handler := NewV1Handler(db, services.NewOfflineRosterClient(), nil)

	mux := http.NewServeMux()
	handler.SetupV1Routes(mux)
	return handler, mux
}

func asStaff(req *http.Request) *http.Request {
	user := &models.AuthenticatedUser{
		IdpUserID: "user-staff",
		Username:  "staffuser",
		Roles:     []models.Role{models.RoleStaff},
	}
	return req.WithContext(authutils.SetAuthenticatedUser(req.Context(), user))
}

func asAdmin(req *http.Request) *http.Request {
	user := &models.AuthenticatedUser{
		IdpUserID: "user-admin",
		Username:  "adminuser",
		Roles:     []models.Role{models.RoleAdmin},
	}
	return req.WithContext(authutils.SetAuthenticatedUser(req.Context(), user))
}

func createTestMember(t *testing.T, mux *http.ServeMux, body string) models.MemberResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var member models.MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	return member
}

func TestHandleMembers_CreateAndGet(t *testing.T) {
	_, mux := newTestHandler(t)

	created := createTestMember(t, mux, `{"fullName":"Ayşe Yılmaz","nationalId":"12345678901","phone":"+905551112233"}`)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "website", created.Provenance)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/"+created.MemberID, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var fetched models.MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.MemberID, fetched.MemberID)
}

func TestHandleMembers_CreateRejectsBadPayload(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/members", bytes.NewBufferString(`{not json`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/members", bytes.NewBufferString(`{"fullName":"Kimliksiz"}`))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMembers_ManualEntryRequiresStaff(t *testing.T) {
	_, mux := newTestHandler(t)
	body := `{"fullName":"Mehmet Demir","registrationNo":"REG-042","provenance":"manual"}`

	// Anonymous request is refused
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Staff request succeeds and is approved immediately
	req = asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/members", bytes.NewBufferString(body)))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var member models.MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, "approved", member.Status)
}

func TestHandleMembers_List(t *testing.T) {
	_, mux := newTestHandler(t)
	createTestMember(t, mux, `{"fullName":"Üye Bir","nationalId":"11111111111"}`)
	createTestMember(t, mux, `{"fullName":"Üye İki","nationalId":"22222222222"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response models.CollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
}

func TestHandleMembers_ListFiltersByDepartment(t *testing.T) {
	_, mux := newTestHandler(t)
	createTestMember(t, mux, `{"fullName":"Hukuk Üyesi","nationalId":"11111111111","department":"Hukuk"}`)
	createTestMember(t, mux, `{"fullName":"Muhasebe Üyesi","nationalId":"22222222222","department":"Muhasebe"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members?department=Hukuk", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response models.CollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
}

func TestHandleMembers_ListRejectsUnknownStatusFilter(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members?status=archived", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMembers_ApproveWorkflow(t *testing.T) {
	_, mux := newTestHandler(t)
	created := createTestMember(t, mux, `{"fullName":"Zeynep Arslan","nationalId":"99988877766"}`)

	// Anonymous approval is refused
	req := httptest.NewRequest(http.MethodPost, "/api/v1/members/"+created.MemberID+"/approve", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/members/"+created.MemberID+"/approve", nil))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var member models.MemberResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &member))
	assert.Equal(t, "approved", member.Status)
	assert.False(t, member.SyncedToSheet)
}

func TestHandleMembers_DeleteRequiresAdmin(t *testing.T) {
	_, mux := newTestHandler(t)
	created := createTestMember(t, mux, `{"fullName":"Silinecek","nationalId":"55544433322"}`)

	req := asStaff(httptest.NewRequest(http.MethodDelete, "/api/v1/members/"+created.MemberID, nil))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/members/"+created.MemberID, nil))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/members/"+created.MemberID, nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleMembers_MethodNotAllowed(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/members", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleSync_TriggerWithOfflineRoster(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var run models.SyncRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.Equal(t, models.SyncModeDatabaseOnly, run.Mode)
	assert.False(t, run.IsFallback)
	assert.NotNil(t, run.CompletedAt)
}

func TestHandleSync_Status(t *testing.T) {
	_, mux := newTestHandler(t)

	// One run so the counters are non-trivial
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.IsRunning)
	assert.Equal(t, 1, status.Stats.TotalSyncs)
	assert.Equal(t, models.BreakerClosed, status.Breaker.State)
}

func TestHandleSync_Runs(t *testing.T) {
	_, mux := newTestHandler(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs?limit=1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var response models.CollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Count)
}

func TestHandleSync_MethodNotAllowed(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/status", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
