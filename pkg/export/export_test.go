package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRendersColumnsInOrder(t *testing.T) {
	sheet := Sheet{
		Columns: []Column{{Key: "code", Label: "Enrollment code"}, {Key: "name", Label: "Student"}, {Key: "handle"}},
		Rows: []map[string]string{
			{"code": "AMLG-2025-7-12", "name": "Ana María Lopez García", "handle": "AMLG-2025-7-12"},
			{"code": "JP-2025-8-13", "name": "Juan, Jr."},
		},
	}

	out, err := NewCSVExporter().Render(sheet)
	require.NoError(t, err)
	assert.Equal(t, "Enrollment code,Student,handle\nAMLG-2025-7-12,Ana María Lopez García,AMLG-2025-7-12\nJP-2025-8-13,\"Juan, Jr.\",\n", string(out))
}

func TestCSVExporterRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Sheet{})
	assert.Error(t, err)
}

func TestCardRendererProducesPDF(t *testing.T) {
	renderer := NewCardRenderer("Student Credential")
	out, err := renderer.Render(Card{
		Institution:    "Escuela Secundaria 4",
		FullName:       "Ana María Lopez García",
		Role:           "STUDENT",
		GroupLabel:     "3A (3rd grade)",
		SchoolYear:     2025,
		EnrollmentCode: "AMLG-2025-7-12",
		Handle:         "AMLG-2025-7-12",
		IssuedOn:       time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestCardRendererRejectsMissingCode(t *testing.T) {
	renderer := NewCardRenderer("")
	_, err := renderer.Render(Card{FullName: "No Code"})
	assert.Error(t, err)

	_, err = renderer.Render()
	assert.Error(t, err)
}
