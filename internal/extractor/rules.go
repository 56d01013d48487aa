package extractor

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"order-intake/internal/mailbox"
	"order-intake/internal/models"

	"github.com/PuerkitoBio/goquery"
)

var (
	productRe  = regexp.MustCompile(`(?im)^[ \t]*(?:product|item)(?:[ \t]+name)?[ \t]*[:\-][ \t]*(.+?)[ \t\r]*$`)
	quantityRe = regexp.MustCompile(`(?im)^[ \t]*(?:quantity|qty)[ \t]*[:\-][ \t]*(\d+(?:[.,]\d+)?)[ \t]*([A-Za-z]*)`)
	dueRe      = regexp.MustCompile(`(?im)^[ \t]*(?:delivery by|deliver by|delivery date|due date|due by)[ \t]*[:\-][ \t]*(.+?)[ \t\r]*$`)
	addressRe  = regexp.MustCompile(`(?im)^[ \t]*(?:address|ship to|delivery address)[ \t]*[:\-][ \t]*(.+?)[ \t\r]*$`)
	phoneRe    = regexp.MustCompile(`(?im)^[ \t]*(?:phone|tel|mobile|contact)[ \t]*[:\-][ \t]*(\+?[\d \t\-()]{6,})[ \t\r]*$`)
	retailerRe = regexp.MustCompile(`(?im)^[ \t]*(?:retailer|company|customer)[ \t]*[:\-][ \t]*(.+?)[ \t\r]*$`)

	urgentWords = []string{"urgent", "immediate", "asap", "rush order"}
	lowWords    = []string{"low priority", "no rush", "whenever convenient"}
)

// field weights sum to 100
var weights = []struct {
	name   string
	weight float64
	get    func(*Result) string
}{
	{"product", 30, func(r *Result) string { return r.ProductName }},
	{"quantity", 25, func(r *Result) string { return r.QuantityOrdered }},
	{"due date", 15, func(r *Result) string { return r.DeliveryDueDate }},
	{"retailer name", 10, func(r *Result) string { return r.RetailerName }},
	{"retailer email", 10, func(r *Result) string { return r.RetailerEmail }},
	{"phone", 5, func(r *Result) string { return r.RetailerPhone }},
	{"address", 5, func(r *Result) string { return r.RetailerAddress }},
}

// RuleExtractor reads labelled lines ("Product: ...", "Quantity: ...") from
// the message body. HTML-only messages are flattened to text first.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

func (e *RuleExtractor) Extract(ctx context.Context, msg mailbox.Message) (*Result, error) {
	text := strings.TrimSpace(msg.TextBody)
	if text == "" && msg.HTMLBody != "" {
		var err error
		text, err = htmlToText(msg.HTMLBody)
		if err != nil {
			return nil, fmt.Errorf("flatten html body: %w", err)
		}
	}

	r := &Result{
		ProductName:     firstMatch(productRe, text),
		DeliveryDueDate: firstMatch(dueRe, text),
		RetailerAddress: firstMatch(addressRe, text),
		RetailerPhone:   strings.TrimSpace(firstMatch(phoneRe, text)),
		RetailerEmail:   msg.From,
		RetailerName:    msg.FromName,
		ExtractedText:   text,
		Subject:         msg.Subject,
	}
	if m := quantityRe.FindStringSubmatch(text); m != nil {
		r.QuantityOrdered = strings.ReplaceAll(m[1], ",", ".")
		r.Unit = m[2]
	}
	if name := firstMatch(retailerRe, text); name != "" {
		r.RetailerName = name
	}
	if len(msg.Attachments) > 0 {
		r.AttachmentPath = msg.Attachments[0]
	}

	if r.ProductName == "" && r.QuantityOrdered == "" {
		return nil, ErrNotAnOrder
	}

	var missing []string
	for _, w := range weights {
		if w.get(r) != "" {
			r.Confidence += w.weight
		} else {
			missing = append(missing, w.name)
		}
	}
	r.Confidence = math.Round(r.Confidence*10) / 10
	r.Priority = priorityOf(msg.Subject + "\n" + text)

	if r.Confidence < models.ReviewThreshold {
		r.Remarks = "Low confidence - missing " + strings.Join(missing, ", ")
	}
	return r, nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func priorityOf(text string) models.PriorityLevel {
	lower := strings.ToLower(text)
	for _, w := range lowWords {
		if strings.Contains(lower, w) {
			return models.PriorityLow
		}
	}
	for _, w := range urgentWords {
		if strings.Contains(lower, w) {
			return models.PriorityUrgent
		}
	}
	return models.PriorityNormal
}

// htmlToText keeps line structure so the labelled-line rules still apply
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, h1, h2, h3, h4, table").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
