package extract

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// Candidate is one item pulled out of a feed payload before dedup and
// persistence.
type Candidate struct {
	Title     string
	Link      string
	Content   string
	Author    string
	Published *time.Time
}

// Hash computes the candidate's dedup key.
func (c *Candidate) Hash() string {
	return ContentHash(c.Title, c.Link, c.Content)
}

// parseDocument parses a feed payload into an XML document and returns the
// per-item nodes: //item for RSS, //entry for Atom.
func parseDocument(body []byte) (*xmlquery.Node, []*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse feed document: %w", err)
	}
	nodes := xmlquery.Find(doc, "//item")
	if len(nodes) == 0 {
		nodes = xmlquery.Find(doc, "//*[local-name()='entry']")
	}
	return doc, nodes, nil
}

// universalExtract reads the standard RSS 2.0 / Atom elements of one item
// node. It is the fallback when a feed has no matching template, and the
// per-field fallback when a template omits a selector.
func universalExtract(node *xmlquery.Node) Candidate {
	var c Candidate
	c.Title = strings.TrimSpace(childText(node, "title"))
	c.Link = itemLink(node)
	c.Content = itemContent(node)
	c.Author = itemAuthor(node)
	c.Published = itemPublished(node)
	return c
}

func childText(node *xmlquery.Node, name string) string {
	child := xmlquery.FindOne(node, "./*[local-name()='"+name+"']")
	if child == nil {
		return ""
	}
	return child.InnerText()
}

func itemLink(node *xmlquery.Node) string {
	// RSS carries the link as element text; Atom as an href attribute,
	// preferring rel="alternate".
	if link := strings.TrimSpace(childText(node, "link")); link != "" {
		return link
	}
	links := xmlquery.Find(node, "./*[local-name()='link']")
	var fallback string
	for _, ln := range links {
		href := ln.SelectAttr("href")
		if href == "" {
			continue
		}
		rel := ln.SelectAttr("rel")
		if rel == "" || rel == "alternate" {
			return strings.TrimSpace(href)
		}
		if fallback == "" {
			fallback = strings.TrimSpace(href)
		}
	}
	return fallback
}

func itemContent(node *xmlquery.Node) string {
	for _, name := range []string{"encoded", "content", "description", "summary"} {
		if text := strings.TrimSpace(childText(node, name)); text != "" {
			return text
		}
	}
	return ""
}

func itemAuthor(node *xmlquery.Node) string {
	// Atom nests the name inside <author>; RSS uses flat author/dc:creator.
	if author := xmlquery.FindOne(node, "./*[local-name()='author']"); author != nil {
		if name := strings.TrimSpace(childText(author, "name")); name != "" {
			return name
		}
		if text := strings.TrimSpace(author.InnerText()); text != "" {
			return text
		}
	}
	return strings.TrimSpace(childText(node, "creator"))
}

var timeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func itemPublished(node *xmlquery.Node) *time.Time {
	for _, name := range []string{"pubDate", "published", "updated", "date"} {
		raw := strings.TrimSpace(childText(node, name))
		if raw == "" {
			continue
		}
		if t := parseTime(raw); t != nil {
			return t
		}
	}
	return nil
}

func parseTime(raw string) *time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
