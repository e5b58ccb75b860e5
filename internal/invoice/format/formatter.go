package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// InvoiceNumber renders a human-readable invoice number from a template,
// the invoice due date and the global invoice sequence.
//
// Supported tokens: {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn} (zero padded to n digits).
func InvoiceNumber(template string, dueDate time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	dueDate = dueDate.UTC()
	out := template
	out = strings.ReplaceAll(out, "{YYYY}", dueDate.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", dueDate.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", dueDate.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", dueDate.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number template: %s", out)
	}
	return out, nil
}

// ValidateTemplate reports whether template renders without unresolved tokens.
func ValidateTemplate(template string) error {
	_, err := InvoiceNumber(template, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 1)
	return err
}
