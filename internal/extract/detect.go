package extract

import "strings"

type DetectResult struct {
	IsInvoice bool
	Score     float64
	Reason    string
}

var detectKeywords = []string{"накладн", "рахун", "invoice", "счет", "счёт", "поставк", "видатков", "ттн", "supply"}

// DetectInvoice scores an incoming message on keyword hits and attached
// documents. Messages under 0.45 are left alone by the mail intake.
func DetectInvoice(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)
	html = strings.ToLower(html)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.3
		}
		if strings.Contains(text, kw) || strings.Contains(html, kw) {
			score += 0.1
		}
	}

	for _, name := range attachmentNames {
		if _, ok := KindFromFilename(name); ok {
			score += 0.3
			break
		}
	}

	if strings.Contains(html, "<table") {
		score += 0.15
	}
	if firstTotalLine(text) != "" {
		score += 0.15
	}
	if score > 1 {
		score = 1
	}

	isInvoice := score >= 0.45
	reason := "rules_negative"
	if isInvoice {
		reason = "rules_positive"
	}
	return DetectResult{IsInvoice: isInvoice, Score: score, Reason: reason}
}

func firstTotalLine(text string) string {
	for _, l := range splitLines(text) {
		if hasLabel(l, totalLabels) {
			return l
		}
	}
	return ""
}
