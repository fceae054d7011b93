package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSV(t *testing.T) {
	table := Table{
		Columns: []string{"Date", "Student"},
		Rows:    [][]string{{"2026-03-02", "s1"}, {"2026-03-03", "s2"}},
	}
	payload, err := CSV(table)
	require.NoError(t, err)
	assert.Equal(t, "Date,Student\n2026-03-02,s1\n2026-03-03,s2\n", string(payload))
}

func TestCSVRejectsRaggedRows(t *testing.T) {
	table := Table{
		Columns: []string{"Date", "Student"},
		Rows:    [][]string{{"2026-03-02"}},
	}
	_, err := CSV(table)
	assert.Error(t, err)
}

func TestPDF(t *testing.T) {
	table := Table{
		Title:   "Upcoming lessons",
		Columns: []string{"Date", "Student"},
		Rows:    [][]string{{"2026-03-02", "s1"}},
	}
	payload, err := PDF(table, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, len(payload) > 0)
	assert.Equal(t, "%PDF", string(payload[:4]))
}
