// Package extract turns raw fetched feed payloads into item candidates. A
// per-feed template drives field extraction; feeds without a template fall
// back to universal RSS/Atom parsing. The package also owns link
// canonicalization and the deterministic content hash used for dedup.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/prismfeed/prism/pkg/models"
)

// Rejection records one candidate dropped during extraction.
type Rejection struct {
	Field  string
	Reason string
}

func rejectField(field string) Rejection {
	return Rejection{Field: field, Reason: "extraction_failure:" + field}
}

// SelectTemplate picks the template for a feed. An explicit assignment on
// the feed wins; otherwise the highest-priority matching rule across all
// templates decides. A nil result means the universal fallback applies.
func SelectTemplate(feed *models.Feed, contentType string, templates []*models.Template) *models.Template {
	if feed.TemplateID != nil {
		for _, tmpl := range templates {
			if tmpl.ID == *feed.TemplateID {
				return tmpl
			}
		}
	}

	host := feedHost(feed.URL)
	type match struct {
		tmpl     *models.Template
		priority int
	}
	matches := []match{}
	for _, tmpl := range templates {
		for _, rule := range tmpl.MatchRules {
			if ruleMatches(rule, feed.URL, host, contentType) {
				matches = append(matches, match{tmpl, rule.Priority})
			}
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].priority > matches[j].priority })
	return matches[0].tmpl
}

func feedHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func ruleMatches(rule models.MatchRule, feedURL, host, contentType string) bool {
	switch rule.Kind {
	case models.MatchDomainEquals:
		return host != "" && strings.EqualFold(rule.Value, host)
	case models.MatchURLRegex:
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false
		}
		return re.MatchString(feedURL)
	case models.MatchContentType:
		return contentType != "" && strings.Contains(strings.ToLower(contentType), strings.ToLower(rule.Value))
	default:
		return false
	}
}

// Extract parses a feed payload and applies the template's selectors to each
// item node. A nil template means pure universal extraction. Candidates
// missing a required field are rejected, not returned.
func Extract(tmpl *models.Template, body []byte) ([]Candidate, []Rejection, error) {
	_, nodes, err := parseDocument(body)
	if err != nil {
		return nil, nil, err
	}

	var proc *processor
	if tmpl != nil {
		proc, err = newProcessor(tmpl.Processing)
		if err != nil {
			return nil, nil, fmt.Errorf("template %q: %w", tmpl.Name, err)
		}
	}

	candidates := []Candidate{}
	rejections := []Rejection{}
	for _, node := range nodes {
		candidate, rejection := extractOne(tmpl, proc, node)
		if rejection != nil {
			rejections = append(rejections, *rejection)
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rejections, nil
}

func extractOne(tmpl *models.Template, proc *processor, node *xmlquery.Node) (Candidate, *Rejection) {
	candidate := universalExtract(node)

	if tmpl != nil {
		for _, field := range []string{models.FieldTitle, models.FieldLink, models.FieldContent, models.FieldAuthor, models.FieldPublished} {
			sel, ok := tmpl.Selectors[field]
			if !ok {
				continue
			}
			value, found := applySelector(node, sel)
			if !found {
				if sel.Required {
					rejection := rejectField(field)
					return Candidate{}, &rejection
				}
				continue
			}
			setField(&candidate, field, value)
		}
	}

	if proc != nil {
		candidate.Content = proc.apply(candidate.Content)
	}

	// Title and link are always required for a persistable item.
	if strings.TrimSpace(candidate.Title) == "" {
		rejection := rejectField(models.FieldTitle)
		return Candidate{}, &rejection
	}
	if strings.TrimSpace(candidate.Link) == "" {
		rejection := rejectField(models.FieldLink)
		return Candidate{}, &rejection
	}
	if tmpl != nil {
		if sel, ok := tmpl.Selectors[models.FieldContent]; ok && sel.Required && candidate.Content == "" {
			rejection := rejectField(models.FieldContent)
			return Candidate{}, &rejection
		}
	}
	return candidate, nil
}

func setField(c *Candidate, field, value string) {
	switch field {
	case models.FieldTitle:
		c.Title = value
	case models.FieldLink:
		c.Link = value
	case models.FieldContent:
		c.Content = value
	case models.FieldAuthor:
		c.Author = value
	case models.FieldPublished:
		if t := parseTime(strings.TrimSpace(value)); t != nil {
			c.Published = t
		}
	}
}

// processor applies a template's processing rules to extracted content.
type processor struct {
	rules  models.ProcessingRules
	remove []*regexp.Regexp
}

func newProcessor(rules models.ProcessingRules) (*processor, error) {
	p := &processor{rules: rules}
	for _, pattern := range rules.RemovePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("remove pattern %q: %w", pattern, err)
		}
		p.remove = append(p.remove, re)
	}
	return p, nil
}

func (p *processor) apply(content string) string {
	if p.rules.StripHTML {
		content = stripHTML(content)
	}
	for _, re := range p.remove {
		content = re.ReplaceAllString(content, "")
	}
	if p.rules.NormalizeWhitespace {
		content = strings.Join(strings.Fields(content), " ")
	}
	if p.rules.MaxContentLength > 0 && utf8.RuneCountInString(content) > p.rules.MaxContentLength {
		runes := []rune(content)
		content = strings.TrimSpace(string(runes[:p.rules.MaxContentLength]))
	}
	if p.rules.MinContentLength > 0 && utf8.RuneCountInString(content) < p.rules.MinContentLength {
		return ""
	}
	return content
}

// stripHTML drops markup and keeps visible text, including anchor text.
func stripHTML(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	return strings.TrimSpace(doc.Text())
}
