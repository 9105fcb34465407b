package xlsx

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/evidence-vault/internal/core/domain"
)

func TestExportWritesExhibitLog(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	records := []domain.Evidence{
		{
			ID:                   "obj-1",
			Filename:             "contract_v2.pdf",
			Category:             domain.CategoryContract,
			Tags:                 []string{"lease", "signed"},
			RelevanceScore:       85,
			Summary:              "Lease agreement",
			DateDetected:         "2024-01-15",
			IngestionStatus:      domain.IngestionCompleted,
			ClassificationSource: domain.SourceText,
			CreatedAt:            created,
		},
		{
			ID:              "obj-2",
			Filename:        "IMG_0042.jpg",
			Category:        domain.CategoryOther,
			Tags:            []string{},
			RelevanceScore:  0,
			IngestionStatus: domain.IngestionPending,
			CreatedAt:       created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewExporter().Export(&buf, records))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Exhibit", rows[0][0])
	assert.Equal(t, []string{"EX-001", "contract_v2.pdf", "contract", "lease, signed", "2024-01-15", "85", "completed", "Lease agreement", "text", "2024-03-01T09:30:00Z", "obj-1"}, rows[1])
	assert.Equal(t, "EX-002", rows[2][0])
	assert.Equal(t, "2024-03-01", rows[2][4])
	assert.Equal(t, "pending", rows[2][6])
}

func TestExportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewExporter().Export(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "exhibits-case-1-20240301.xlsx", NewExporter().Filename("case 1", now))
	assert.Equal(t, "exhibits-vault-20240301.xlsx", NewExporter().Filename(" ", now))
}
