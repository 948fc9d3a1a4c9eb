package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Day", "Time", "Activity"},
		Rows: []map[string]string{
			{"Day": "Monday", "Time": "09:00-10:00", "Activity": "Algorithms, section A"},
			{"Day": "Tuesday", "Time": "11:00-12:00"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "Day,Time,Activity\nMonday,09:00-10:00,\"Algorithms, section A\"\nTuesday,11:00-12:00,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 60; i++ {
		data.Rows = append(data.Rows, map[string]string{"Day": "Friday", "Time": "13:00-14:00", "Activity": "Lab"})
	}
	out, err := NewPDFExporter().Render(Document{Title: "Weekly timetable", Subtitles: []string{"2026/2027 ODD"}, Data: data})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterRejectsBadWidths(t *testing.T) {
	data := sampleDataset()
	data.Widths = []float64{1, 2}
	_, err := NewPDFExporter().Render(Document{Data: data})
	assert.Error(t, err)

	data.Widths = []float64{1, 0, 1}
	_, err = NewPDFExporter().Render(Document{Data: data})
	assert.Error(t, err)
}
