package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
	"github.com/noah-isme/sma-enrollment-api/pkg/export"
)

type credentialEnrollmentReader interface {
	FindByID(ctx context.Context, kind models.PersonKind, id int64) (*models.Enrollment, error)
	ListCredentialsByGroup(ctx context.Context, groupID int64) ([]models.CredentialRow, error)
}

type credentialAccountReader interface {
	FindByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Account, error)
}

type cardRenderer interface {
	Render(cards ...export.Card) ([]byte, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

// CredentialConfig customises printed credentials.
type CredentialConfig struct {
	CardTitle   string
	Institution string
}

// Document is a rendered credential file.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// CredentialService renders credential cards and group credential sheets.
type CredentialService struct {
	enrollments credentialEnrollmentReader
	accounts    credentialAccountReader
	people      personReader
	groups      groupReader
	cards       cardRenderer
	sheets      sheetRenderer
	logger      *zap.Logger
	config      CredentialConfig
	now         func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(enrollments credentialEnrollmentReader, accounts credentialAccountReader, people personReader, groups groupReader, cards cardRenderer, sheets sheetRenderer, logger *zap.Logger, cfg CredentialConfig) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cards == nil {
		cards = export.NewCardRenderer(cfg.CardTitle)
	}
	if sheets == nil {
		sheets = export.NewCSVExporter()
	}
	return &CredentialService{
		enrollments: enrollments,
		accounts:    accounts,
		people:      people,
		groups:      groups,
		cards:       cards,
		sheets:      sheets,
		logger:      logger,
		config:      cfg,
		now:         time.Now,
	}
}

// StudentCard renders the printable credential of a student enrollment.
func (s *CredentialService) StudentCard(ctx context.Context, enrollmentID int64) (*Document, error) {
	enrollment, err := s.enrollments.FindByID(ctx, models.PersonStudent, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load enrollment")
	}
	if !enrollment.HasCode() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment has no code yet, provision its account first")
	}

	person, err := s.people.FindByID(ctx, models.PersonStudent, enrollment.PersonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load student")
	}

	card := export.Card{
		Title:          s.config.CardTitle,
		Institution:    s.config.Institution,
		FullName:       person.FullName(),
		Role:           "Student",
		SchoolYear:     enrollment.SchoolYear,
		EnrollmentCode: *enrollment.Code,
		IssuedOn:       s.now(),
	}

	if enrollment.GroupID != nil {
		group, err := s.groups.FindByID(ctx, *enrollment.GroupID)
		switch {
		case err == nil:
			card.GroupLabel = group.Label()
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load group")
		}
	}

	account, err := s.accounts.FindByEnrollmentID(ctx, enrollment.ID)
	switch {
	case err == nil:
		card.Handle = account.Handle
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load account")
	}

	body, err := s.cards.Render(card)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render credential card")
	}
	return &Document{
		Filename:    fmt.Sprintf("credential-%s.pdf", *enrollment.Code),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

var credentialSheetColumns = []export.Column{
	{Key: "enrollment_id", Label: "Enrollment ID"},
	{Key: "name", Label: "Name"},
	{Key: "school_year", Label: "School Year"},
	{Key: "code", Label: "Enrollment Code"},
	{Key: "handle", Label: "Login Handle"},
	{Key: "status", Label: "Account"},
}

// GroupSheet renders the credential sheet of a group's active students.
func (s *CredentialService) GroupSheet(ctx context.Context, groupID int64) (*Document, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to load group")
	}

	rows, err := s.enrollments.ListCredentialsByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrStorage, "failed to list group credentials")
	}

	sheet := export.Sheet{Columns: credentialSheetColumns}
	missing := 0
	for _, row := range rows {
		record := map[string]string{
			"enrollment_id": strconv.FormatInt(row.EnrollmentID, 10),
			"name":          strings.TrimSpace(row.LastNames + ", " + row.FirstNames),
			"school_year":   strconv.Itoa(row.SchoolYear),
			"status":        "provisioned",
		}
		if row.Code != nil {
			record["code"] = *row.Code
		}
		if row.Handle != nil {
			record["handle"] = *row.Handle
		} else {
			record["status"] = "missing"
			missing++
		}
		sheet.Rows = append(sheet.Rows, record)
	}
	if missing > 0 {
		s.logger.Info("group has enrollments without accounts", zap.Int64("group_id", groupID), zap.Int("missing", missing))
	}

	body, err := s.sheets.Render(sheet)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render credential sheet")
	}
	return &Document{
		Filename:    fmt.Sprintf("credentials-%s.csv", slug(group.Name)),
		ContentType: "text/csv",
		Body:        body,
	}, nil
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "group"
	}
	return b.String()
}
