package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"

	"github.com/prismfeed/prism/pkg/models"
)

// applySelector evaluates one field selector against an item node. CSS
// selectors run against an HTML rendering of the node; XPath and attribute
// selectors run against the XML node directly; literal selectors return the
// configured default.
func applySelector(node *xmlquery.Node, sel models.FieldSelector) (string, bool) {
	switch sel.Kind {
	case models.SelectorLiteral:
		return sel.Default, sel.Default != ""

	case models.SelectorXPath:
		found := xmlquery.FindOne(node, sel.Query)
		if found == nil {
			return "", false
		}
		text := strings.TrimSpace(found.InnerText())
		return text, text != ""

	case models.SelectorAttribute:
		target := node
		if sel.Query != "" {
			target = xmlquery.FindOne(node, sel.Query)
			if target == nil {
				return "", false
			}
		}
		value := strings.TrimSpace(target.SelectAttr(sel.Attribute))
		return value, value != ""

	case models.SelectorCSS:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(node.OutputXML(true)))
		if err != nil {
			return "", false
		}
		found := doc.Find(sel.Query).First()
		if found.Length() == 0 {
			return "", false
		}
		if sel.Attribute != "" {
			value, ok := found.Attr(sel.Attribute)
			value = strings.TrimSpace(value)
			return value, ok && value != ""
		}
		text := strings.TrimSpace(found.Text())
		return text, text != ""

	default:
		return "", false
	}
}
