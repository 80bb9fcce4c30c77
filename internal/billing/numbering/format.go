package numbering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

const (
	DefaultQuoteTemplate   = "Q-{SEQ4}"
	DefaultInvoiceTemplate = "F-{SEQ4}"
)

// Format renders template for the given reference date and sequence value.
// Supported tokens are {YYYY} {YY} {MM} {DD} {SEQ} and {SEQn}, where n is the
// zero-padded width. Any token left unresolved is an error.
func Format(template string, ref time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("numbering: template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("numbering: invalid sequence %d", seq)
	}

	out := template
	out = strings.ReplaceAll(out, "{YYYY}", ref.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", ref.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", ref.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", ref.Format("02"))
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
		return "", fmt.Errorf("numbering: unresolved token in %q", out)
	}
	return out, nil
}

// ValidateTemplate checks that template carries a sequence token and
// renders cleanly.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "{SEQ") {
		return fmt.Errorf("numbering: template %q has no {SEQ} token", template)
	}
	_, err := Format(template, time.Now(), 1)
	return err
}
