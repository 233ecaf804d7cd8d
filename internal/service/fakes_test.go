package service

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	"github.com/noah-isme/sma-enrollment-api/internal/repository"
)

type mockPeople struct {
	people map[models.PersonKind]map[int64]*models.Person
	err    error
}

func newMockPeople() *mockPeople {
	return &mockPeople{people: map[models.PersonKind]map[int64]*models.Person{
		models.PersonStudent: {},
		models.PersonTeacher: {},
	}}
}

func (m *mockPeople) add(kind models.PersonKind, p models.Person) *mockPeople {
	p.Kind = kind
	m.people[kind][p.ID] = &p
	return m
}

func (m *mockPeople) FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Person, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.people[kind][id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *p
	return &out, nil
}

type mockGroups struct {
	groups      map[int64]*models.Group
	enrollments *mockEnrollmentRepo
}

func (m *mockGroups) FindByID(ctx context.Context, id int64) (*models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *g
	return &out, nil
}

func (m *mockGroups) CountActiveMembers(ctx context.Context, id int64) (int, error) {
	if m.enrollments == nil {
		return 0, nil
	}
	count := 0
	for _, row := range m.enrollments.rows[models.PersonStudent] {
		if row.GroupID != nil && *row.GroupID == id && row.State == models.EnrollmentActive {
			count++
		}
	}
	return count, nil
}

// mockEnrollmentRepo mimics the transactional checks of the SQL repository.
type mockEnrollmentRepo struct {
	rows          map[models.PersonKind]map[int64]*models.Enrollment
	groups        *mockGroups
	nextID        int64
	createErr     error
	updateCodeErr error
	writes        int
}

func newMockEnrollmentRepo(groups *mockGroups, nextID int64) *mockEnrollmentRepo {
	return &mockEnrollmentRepo{
		rows: map[models.PersonKind]map[int64]*models.Enrollment{
			models.PersonStudent: {},
			models.PersonTeacher: {},
		},
		groups: groups,
		nextID: nextID,
	}
}

func (m *mockEnrollmentRepo) seed(e models.Enrollment) {
	out := e
	m.rows[e.PersonKind][e.ID] = &out
	if e.ID >= m.nextID {
		m.nextID = e.ID + 1
	}
}

func (m *mockEnrollmentRepo) count(kind models.PersonKind) int {
	return len(m.rows[kind])
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, e *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if e.GroupID != nil {
		group, ok := m.groups.groups[*e.GroupID]
		if !ok {
			return repository.ErrGroupNotFound
		}
		active, member := 0, false
		for _, row := range m.rows[e.PersonKind] {
			if row.GroupID == nil || *row.GroupID != *e.GroupID || row.State != models.EnrollmentActive {
				continue
			}
			active++
			member = member || row.PersonID == e.PersonID
		}
		if e.PersonKind == models.PersonStudent && active >= group.Capacity {
			return repository.ErrGroupFull
		}
		if member {
			return repository.ErrAlreadyMember
		}
	}
	e.ID = m.nextID
	m.nextID++
	e.Code = nil
	if e.EnrolledOn.IsZero() {
		e.EnrolledOn = time.Now().UTC()
	}
	m.seed(*e)
	m.writes++
	return nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error) {
	row, ok := m.rows[kind][id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *row
	return &out, nil
}

func (m *mockEnrollmentRepo) FindLatestByPerson(ctx context.Context, kind models.PersonKind, personID int64) (*models.Enrollment, error) {
	var latest *models.Enrollment
	for _, row := range m.rows[kind] {
		if row.PersonID != personID {
			continue
		}
		if latest == nil || row.SchoolYear > latest.SchoolYear || (row.SchoolYear == latest.SchoolYear && row.ID > latest.ID) {
			latest = row
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	out := *latest
	return &out, nil
}

func (m *mockEnrollmentRepo) ListCurrentByPerson(ctx context.Context, kind models.PersonKind, personID int64) ([]models.Enrollment, error) {
	var year int
	for _, row := range m.rows[kind] {
		if row.PersonID == personID && row.SchoolYear > year {
			year = row.SchoolYear
		}
	}
	var out []models.Enrollment
	for _, row := range m.rows[kind] {
		if row.PersonID == personID && row.SchoolYear == year {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockEnrollmentRepo) UpdateCode(ctx context.Context, kind models.PersonKind, id int64, code string) error {
	if m.updateCodeErr != nil {
		return m.updateCodeErr
	}
	row, ok := m.rows[kind][id]
	if !ok {
		return sql.ErrNoRows
	}
	row.Code = &code
	m.writes++
	return nil
}

func (m *mockEnrollmentRepo) UpdateState(ctx context.Context, kind models.PersonKind, id int64, state models.EnrollmentState) (bool, error) {
	row, ok := m.rows[kind][id]
	if !ok {
		return false, nil
	}
	if state == models.EnrollmentActive && row.GroupID != nil {
		for _, other := range m.rows[kind] {
			if other.ID != id && other.PersonID == row.PersonID && other.GroupID != nil &&
				*other.GroupID == *row.GroupID && other.State == models.EnrollmentActive {
				return false, repository.ErrAlreadyMember
			}
		}
	}
	row.State = state
	m.writes++
	return true, nil
}

func (m *mockEnrollmentRepo) UpdateLoginPermission(ctx context.Context, kind models.PersonKind, id int64, permits bool) (bool, error) {
	row, ok := m.rows[kind][id]
	if !ok {
		return false, nil
	}
	row.PermitsLogin = permits
	m.writes++
	return true, nil
}

func (m *mockEnrollmentRepo) DeactivateMembership(ctx context.Context, kind models.PersonKind, personID, groupID int64) (bool, error) {
	for _, row := range m.rows[kind] {
		if row.PersonID == personID && row.GroupID != nil && *row.GroupID == groupID && row.State == models.EnrollmentActive {
			row.State = models.EnrollmentInactive
			m.writes++
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Delete(ctx context.Context, kind models.PersonKind, id int64) (bool, error) {
	if _, ok := m.rows[kind][id]; !ok {
		return false, nil
	}
	delete(m.rows[kind], id)
	m.writes++
	return true, nil
}

func (m *mockEnrollmentRepo) ListCredentialsByGroup(ctx context.Context, groupID int64) ([]models.CredentialRow, error) {
	return nil, nil
}

type mockAccountRepo struct {
	accounts    map[int64]*models.Account
	nextID      int64
	createErr   error
	auditLogs   []*models.AuditLog
	lastLogins  map[int64]time.Time
	createCalls int
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: map[int64]*models.Account{}, nextID: 1, lastLogins: map[int64]time.Time{}}
}

func (m *mockAccountRepo) seed(a models.Account) *models.Account {
	if a.ID == 0 {
		a.ID = m.nextID
	}
	if a.ID >= m.nextID {
		m.nextID = a.ID + 1
	}
	out := a
	m.accounts[a.ID] = &out
	return &out
}

func (m *mockAccountRepo) find(match func(*models.Account) bool) (*models.Account, error) {
	for _, a := range m.accounts {
		if match(a) {
			out := *a
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) FindActiveByHandle(ctx context.Context, handle string) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.Handle == handle && a.Active })
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.ID == id })
}

func (m *mockAccountRepo) FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.EnrollmentID != nil && *a.EnrollmentID == enrollmentID })
}

func (m *mockAccountRepo) FindByTeacherID(ctx context.Context, teacherID int64) (*models.Account, error) {
	return m.find(func(a *models.Account) bool { return a.TeacherID != nil && *a.TeacherID == teacherID })
}

func (m *mockAccountRepo) HandleExists(ctx context.Context, handle string) (bool, error) {
	_, err := m.find(func(a *models.Account) bool { return a.Handle == handle })
	return err == nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.Account) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if exists, _ := m.HandleExists(ctx, account.Handle); exists {
		return repository.ErrHandleTaken
	}
	account.ID = m.nextID
	account.CreatedAt = time.Now().UTC()
	m.seed(*account)
	return nil
}

func (m *mockAccountRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string, changedAt time.Time) error {
	if a, ok := m.accounts[id]; ok {
		a.PasswordHash = passwordHash
		a.PasswordChangedAt = &changedAt
	}
	return nil
}

func (m *mockAccountRepo) UpdateLastLogin(ctx context.Context, id int64, ts time.Time) error {
	m.lastLogins[id] = ts
	return nil
}

func (m *mockAccountRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if _, ok := m.accounts[id]; !ok {
		return false, nil
	}
	delete(m.accounts, id)
	return true, nil
}

func (m *mockAccountRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockThrottle struct {
	failures map[string]int64
}

func newMockThrottle() *mockThrottle {
	return &mockThrottle{failures: map[string]int64{}}
}

func (m *mockThrottle) Failures(ctx context.Context, handle string) (int64, error) {
	return m.failures[handle], nil
}

func (m *mockThrottle) RecordFailure(ctx context.Context, handle string, window time.Duration) (int64, error) {
	m.failures[handle]++
	return m.failures[handle], nil
}

func (m *mockThrottle) Reset(ctx context.Context, handle string) error {
	delete(m.failures, handle)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func hashFor(secret string) string {
	hash, _ := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	return string(hash)
}

// fixture wires the enrollment, account and session services over in-memory fakes.
type fixture struct {
	people      *mockPeople
	groups      *mockGroups
	enrollments *mockEnrollmentRepo
	accounts    *mockAccountRepo
	accountSvc  *AccountService
	enrollSvc   *EnrollmentService
}

func newFixture() *fixture {
	people := newMockPeople().
		add(models.PersonStudent, models.Person{ID: 7, FirstNames: "Ana María", LastNames: "Lopez García", Email: "ana@example.com"}).
		add(models.PersonTeacher, models.Person{ID: 4, FirstNames: "Jorge", LastNames: "López", Email: "JLopez@school.edu"})
	groups := &mockGroups{groups: map[int64]*models.Group{
		3: {ID: 3, Name: "3A", Grade: "3rd", Shift: models.ShiftMorning, Capacity: 30},
	}}
	enrollments := newMockEnrollmentRepo(groups, 12)
	groups.enrollments = enrollments
	accounts := newMockAccountRepo()

	accountSvc := NewAccountService(accounts, people, enrollments, nil, nil, nil, AccountConfig{BcryptCost: bcrypt.MinCost})
	enrollSvc := NewEnrollmentService(enrollments, people, groups, accountSvc, nil, nil, nil, EnrollmentConfig{DefaultSchoolYear: 2025})
	return &fixture{
		people:      people,
		groups:      groups,
		enrollments: enrollments,
		accounts:    accounts,
		accountSvc:  accountSvc,
		enrollSvc:   enrollSvc,
	}
}
