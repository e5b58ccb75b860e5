package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceNumber(t *testing.T) {
	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		template string
		seq      int64
		want     string
	}{
		{"INV-{YYYY}{MM}-{SEQ6}", 42, "INV-202402-000042"},
		{"CB/{YY}/{DD}/{SEQ}", 7, "CB/24/01/7"},
		{"INV-{SEQ3}", 12345, "INV-12345"},
	}
	for _, tc := range cases {
		got, err := InvoiceNumber(tc.template, due, tc.seq)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestInvoiceNumberRejectsBadInput(t *testing.T) {
	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	_, err := InvoiceNumber("", due, 1)
	assert.Error(t, err)

	_, err = InvoiceNumber("INV-{SEQ}", due, 0)
	assert.Error(t, err)

	_, err = InvoiceNumber("INV-{MONTH}-{SEQ}", due, 1)
	assert.Error(t, err)

	assert.NoError(t, ValidateTemplate("INV-{YYYY}{MM}-{SEQ6}"))
	assert.Error(t, ValidateTemplate("INV-{SEQ"))
}
