package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-api/internal/middleware"
	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/service"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
)

type enrollmentServiceMock struct {
	receipt     *models.EnrollmentReceipt
	enrollment  *models.Enrollment
	err         error
	lastCreate  service.CreateEnrollmentRequest
	lastKind    models.PersonKind
	lastID      int64
	lastState   models.EnrollmentState
	lastPermits *bool
	lastGroup   int64
}

func (m *enrollmentServiceMock) CreateEnrollment(ctx context.Context, req service.CreateEnrollmentRequest) (*models.EnrollmentReceipt, error) {
	m.lastCreate = req
	return m.receipt, m.err
}

func (m *enrollmentServiceMock) Get(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error) {
	m.lastKind, m.lastID = kind, id
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) SetState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (*models.Enrollment, error) {
	m.lastKind, m.lastID, m.lastState = kind, id, state
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) SetLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (*models.Enrollment, error) {
	m.lastKind, m.lastID, m.lastPermits = kind, id, &permits
	return m.enrollment, m.err
}

func (m *enrollmentServiceMock) RemoveGroupMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) error {
	m.lastKind, m.lastID, m.lastGroup = kind, personID, groupID
	return m.err
}

func (m *enrollmentServiceMock) DeleteEnrollment(ctx context.Context, kind models.PersonKind, id int64) error {
	m.lastKind, m.lastID = kind, id
	return m.err
}

func (m *enrollmentServiceMock) Occupancy(ctx context.Context, groupID int64) (*models.GroupOccupancy, error) {
	m.lastGroup = groupID
	if m.err != nil {
		return nil, m.err
	}
	return &models.GroupOccupancy{Group: models.Group{ID: groupID, Name: "3A", Capacity: 30}, Active: 28, Available: 2}, nil
}

type sessionServiceMock struct {
	res     *models.LoginResponse
	err     error
	lastReq models.LoginRequest
}

func (m *sessionServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastReq = req
	return m.res, m.err
}

type accountServiceMock struct {
	account    *models.Account
	err        error
	changed    int64
	lastChange models.ChangeSecretRequest
	calls      []string
}

func (m *accountServiceMock) ChangeSecret(ctx context.Context, accountID int64, req models.ChangeSecretRequest) error {
	m.changed, m.lastChange = accountID, req
	return m.err
}

func (m *accountServiceMock) ProvisionAccountFor(ctx context.Context, enrollmentID int64) (*models.Account, error) {
	m.calls = append(m.calls, "enrollment")
	return m.account, m.err
}

func (m *accountServiceMock) ProvisionTeacherAccount(ctx context.Context, teacherID int64) (*models.Account, error) {
	m.calls = append(m.calls, "teacher")
	return m.account, m.err
}

func (m *accountServiceMock) DeleteAccount(ctx context.Context, id int64) error {
	m.calls = append(m.calls, "delete")
	return m.err
}

type credentialServiceMock struct {
	doc *service.Document
	err error
}

func (m *credentialServiceMock) StudentCard(ctx context.Context, enrollmentID int64) (*service.Document, error) {
	return m.doc, m.err
}

func (m *credentialServiceMock) GroupSheet(ctx context.Context, groupID int64) (*service.Document, error) {
	return m.doc, m.err
}

type pingerMock struct{ err error }

func (p pingerMock) PingContext(ctx context.Context) error { return p.err }

func newGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withIdentity(c *gin.Context, identity models.Identity) {
	c.Set(middleware.ContextUserKey, &models.IdentityClaims{Identity: identity})
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestAuthHandlerLogin(t *testing.T) {
	sessions := &sessionServiceMock{res: &models.LoginResponse{AccessToken: "token", ExpiresIn: 60}}
	h := NewAuthHandler(sessions, &accountServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", models.LoginRequest{Handle: "AMLG-2025-7-12", Secret: "AMLG-2025-7-12"})
	c.Request.Header.Set("User-Agent", "handler-test")
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AMLG-2025-7-12", sessions.lastReq.Handle)
	assert.Equal(t, "handler-test", sessions.lastReq.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	sessions := &sessionServiceMock{err: appErrors.ErrLoginDisabled}
	h := NewAuthHandler(sessions, &accountServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/login", models.LoginRequest{Handle: "h", Secret: "s"})
	h.Login(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrLoginDisabled.Code, errorCode(t, w))

	c, w = newGinContext(http.MethodPost, "/auth/login", nil)
	c.Request.Body = http.NoBody
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMeAndChangeSecret(t *testing.T) {
	accounts := &accountServiceMock{}
	h := NewAuthHandler(&sessionServiceMock{}, accounts)

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	withIdentity(c, models.Identity{AccountID: 5, Handle: "jlopez", Role: models.RoleTeacher})
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"handle":"jlopez"`)

	c, w = newGinContext(http.MethodPost, "/auth/change-secret", models.ChangeSecretRequest{OldSecret: "old", NewSecret: "new-secret-value"})
	withIdentity(c, models.Identity{AccountID: 5})
	h.ChangeSecret(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(5), accounts.changed)
	assert.Equal(t, "new-secret-value", accounts.lastChange.NewSecret)
}

func TestEnrollmentHandlerCreate(t *testing.T) {
	handle := "AMLG-2025-7-12"
	svc := &enrollmentServiceMock{receipt: &models.EnrollmentReceipt{
		Enrollment:         models.Enrollment{ID: 12, PersonKind: models.PersonStudent, PersonID: 7},
		AccountHandle:      &handle,
		AccountProvisioned: true,
	}}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/enrollments", map[string]interface{}{"person_kind": "student", "person_id": 7, "group_id": 3})
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.PersonStudent, svc.lastCreate.PersonKind)
	require.NotNil(t, svc.lastCreate.GroupID)
	assert.Equal(t, int64(3), *svc.lastCreate.GroupID)
	assert.NotContains(t, w.Body.String(), "warning")
}

func TestEnrollmentHandlerCreateDegraded(t *testing.T) {
	svc := &enrollmentServiceMock{receipt: &models.EnrollmentReceipt{Enrollment: models.Enrollment{ID: 12}}}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/enrollments", map[string]interface{}{"person_kind": "student", "person_id": 7})
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "warning")

	svc.err = appErrors.ErrCapacityExceeded
	c, w = newGinContext(http.MethodPost, "/enrollments", map[string]interface{}{"person_kind": "student", "person_id": 7})
	h.Create(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, errorCode(t, w))
}

func TestEnrollmentHandlerPathParams(t *testing.T) {
	svc := &enrollmentServiceMock{enrollment: &models.Enrollment{ID: 12}}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPatch, "/enrollments/teacher/12/state", map[string]string{"state": "RETIRED"})
	c.Params = gin.Params{{Key: "kind", Value: "Teacher"}, {Key: "id", Value: "12"}}
	h.SetState(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PersonTeacher, svc.lastKind)
	assert.Equal(t, models.EnrollmentRetired, svc.lastState)

	c, w = newGinContext(http.MethodPatch, "/enrollments/student/12/login", map[string]bool{"permits_login": false})
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "12"}}
	h.SetLoginPermission(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastPermits)
	assert.False(t, *svc.lastPermits)

	c, w = newGinContext(http.MethodPatch, "/enrollments/student/12/login", map[string]string{})
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "12"}}
	h.SetLoginPermission(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodDelete, "/enrollments/parent/12", nil)
	c.Params = gin.Params{{Key: "kind", Value: "parent"}, {Key: "id", Value: "12"}}
	h.Delete(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodDelete, "/enrollments/student/abc", nil)
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "abc"}}
	h.Delete(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = appErrors.ErrNotFound
	c, w = newGinContext(http.MethodGet, "/enrollments/student/99", nil)
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "99"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEnrollmentHandlerRemoveMember(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/groups/3/members/remove", map[string]interface{}{"person_kind": "student", "person_id": 7})
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	h.RemoveMember(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(7), svc.lastID)
	assert.Equal(t, int64(3), svc.lastGroup)

	c, w = newGinContext(http.MethodPost, "/groups/3/members/remove", map[string]interface{}{"person_kind": "alumni", "person_id": 7})
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	h.RemoveMember(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnrollmentHandlerOccupancy(t *testing.T) {
	svc := &enrollmentServiceMock{}
	h := NewEnrollmentHandler(svc)

	c, w := newGinContext(http.MethodGet, "/groups/3/occupancy", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	h.Occupancy(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":2`)
	assert.Equal(t, int64(3), svc.lastGroup)
}

func TestAccountHandler(t *testing.T) {
	accounts := &accountServiceMock{account: &models.Account{ID: 1, Handle: "AMLG-2025-7-12", Role: models.RoleStudent}}
	h := NewAccountHandler(accounts)

	c, w := newGinContext(http.MethodPost, "/enrollments/student/12/account", nil)
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "12"}}
	h.ProvisionEnrollment(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")

	c, w = newGinContext(http.MethodPost, "/enrollments/teacher/12/account", nil)
	c.Params = gin.Params{{Key: "kind", Value: "teacher"}, {Key: "id", Value: "12"}}
	h.ProvisionEnrollment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/teachers/4/account", nil)
	c.Params = gin.Params{{Key: "id", Value: "4"}}
	h.ProvisionTeacher(c)
	assert.Equal(t, http.StatusOK, w.Code)

	accounts.err = appErrors.ErrForbidden
	c, w = newGinContext(http.MethodDelete, "/accounts/1", nil)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, []string{"enrollment", "teacher", "delete"}, accounts.calls)
}

func TestCredentialHandler(t *testing.T) {
	creds := &credentialServiceMock{doc: &service.Document{Filename: "credential-AMLG-2025-7-12.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}}
	h := NewCredentialHandler(creds)

	c, w := newGinContext(http.MethodGet, "/enrollments/student/12/card", nil)
	c.Params = gin.Params{{Key: "kind", Value: "student"}, {Key: "id", Value: "12"}}
	h.StudentCard(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "credential-AMLG-2025-7-12.pdf")

	creds.err = appErrors.ErrNotFound
	c, w = newGinContext(http.MethodGet, "/groups/3/credentials.csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "3"}}
	h.GroupSheet(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsHandlerHealth(t *testing.T) {
	c, w := newGinContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingerMock{}).Health(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/health", nil)
	NewMetricsHandler(nil, pingerMock{err: errors.New("down")}).Health(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(service.NewMetricsService(), nil).Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
