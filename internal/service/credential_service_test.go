package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
	"github.com/noah-isme/sma-enrollment-api/pkg/export"
)

type stubCredentialRows struct {
	*mockEnrollmentRepo
	rows []models.CredentialRow
}

func (s stubCredentialRows) ListCredentialsByGroup(ctx context.Context, groupID int64) ([]models.CredentialRow, error) {
	return s.rows, nil
}

type recordingCards struct {
	cards []export.Card
}

func (r *recordingCards) Render(cards ...export.Card) ([]byte, error) {
	r.cards = append(r.cards, cards...)
	return []byte("%PDF-stub"), nil
}

func strPtr(v string) *string { return &v }

func TestStudentCard(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.enrollments.seed(models.Enrollment{ID: 12, PersonKind: models.PersonStudent, PersonID: 7, GroupID: int64Ptr(3), SchoolYear: 2025, Code: strPtr("AMLG-2025-7-12"), State: models.EnrollmentActive})
	f.accounts.seed(models.Account{Handle: "AMLG-2025-7-12", Role: models.RoleStudent, EnrollmentID: int64Ptr(12), Active: true})

	cards := &recordingCards{}
	svc := NewCredentialService(f.enrollments, f.accounts, f.people, f.groups, cards, nil, nil, CredentialConfig{CardTitle: "Student Credential", Institution: "Escuela Central"})

	doc, err := svc.StudentCard(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, "credential-AMLG-2025-7-12.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	require.Len(t, cards.cards, 1)
	card := cards.cards[0]
	assert.Equal(t, "Ana María Lopez García", card.FullName)
	assert.Equal(t, "3A (3rd)", card.GroupLabel)
	assert.Equal(t, "AMLG-2025-7-12", card.Handle)
	assert.Equal(t, "Escuela Central", card.Institution)
}

func TestStudentCardRendersPDF(t *testing.T) {
	f := newFixture()
	f.enrollments.seed(models.Enrollment{ID: 12, PersonKind: models.PersonStudent, PersonID: 7, SchoolYear: 2025, Code: strPtr("AMLG-2025-7-12"), State: models.EnrollmentActive})
	svc := NewCredentialService(f.enrollments, f.accounts, f.people, f.groups, nil, nil, nil, CredentialConfig{CardTitle: "Student Credential"})

	doc, err := svc.StudentCard(context.Background(), 12)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF")))
}

func TestStudentCardRequiresCode(t *testing.T) {
	f := newFixture()
	f.enrollments.seed(models.Enrollment{ID: 12, PersonKind: models.PersonStudent, PersonID: 7, SchoolYear: 2025, State: models.EnrollmentActive})
	svc := NewCredentialService(f.enrollments, f.accounts, f.people, f.groups, nil, nil, nil, CredentialConfig{})

	_, err := svc.StudentCard(context.Background(), 12)
	requireCode(t, err, appErrors.ErrConflict)

	_, err = svc.StudentCard(context.Background(), 404)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestGroupSheet(t *testing.T) {
	f := newFixture()
	rows := stubCredentialRows{mockEnrollmentRepo: f.enrollments, rows: []models.CredentialRow{
		{EnrollmentID: 12, FirstNames: "Ana María", LastNames: "Lopez García", SchoolYear: 2025, Code: strPtr("AMLG-2025-7-12"), Handle: strPtr("AMLG-2025-7-12")},
		{EnrollmentID: 13, FirstNames: "Luis", LastNames: "Ortega", SchoolYear: 2025, Code: strPtr("LO-2025-8-13")},
	}}
	svc := NewCredentialService(rows, f.accounts, f.people, f.groups, nil, nil, nil, CredentialConfig{})

	doc, err := svc.GroupSheet(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "credentials-3a.csv", doc.Filename)

	lines := strings.Split(strings.TrimSpace(string(doc.Body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Enrollment ID,Name,School Year,Enrollment Code,Login Handle,Account", lines[0])
	assert.Equal(t, `12,"Lopez García, Ana María",2025,AMLG-2025-7-12,AMLG-2025-7-12,provisioned`, lines[1])
	assert.Equal(t, `13,"Ortega, Luis",2025,LO-2025-8-13,,missing`, lines[2])

	_, err = svc.GroupSheet(context.Background(), 404)
	requireCode(t, err, appErrors.ErrNotFound)
}
