package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Review queue",
		Headers: []string{"id", "student", "status"},
		Rows: []map[string]string{
			{"id": "r-1", "student": "Ada Lovelace", "status": "PENDING"},
			{"id": "r-2", "student": "Alan, Turing", "status": "INSTRUCTOR_APPROVED"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.ContentType())
	assert.Equal(t, "queue.pdf", f.Filename("queue"))

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestCSVRender(t *testing.T) {
	out, err := Render(FormatCSV, sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "id,student,status\nr-1,Ada Lovelace,PENDING\nr-2,\"Alan, Turing\",INSTRUCTOR_APPROVED\n", string(out))
}

func TestPDFRender(t *testing.T) {
	out, err := Render(FormatPDF, sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}
