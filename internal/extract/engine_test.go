package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismfeed/prism/pkg/models"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Example Wire</title>
    <item>
      <title>Central bank raises rates</title>
      <link>https://Example.com/news/rates?utm_source=rss</link>
      <description>Benchmark rate up 25bp.</description>
      <dc:creator>A. Reporter</dc:creator>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
    </item>
    <item>
      <title>Oil futures slide</title>
      <link>https://example.com/news/oil</link>
      <description>Brent down 3 percent.</description>
    </item>
    <item>
      <title></title>
      <link>https://example.com/news/untitled</link>
    </item>
  </channel>
</rss>`

const atomBody = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Source</title>
  <entry>
    <title>Chip export controls widen</title>
    <link rel="alternate" href="https://atom.example.org/chips"/>
    <summary>New entity list additions.</summary>
    <author><name>B. Writer</name></author>
    <published>2026-03-01T09:30:00Z</published>
  </entry>
</feed>`

func TestUniversalExtractRSS(t *testing.T) {
	candidates, rejections, err := Extract(nil, []byte(rssBody))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Len(t, rejections, 1)
	assert.Equal(t, "extraction_failure:title", rejections[0].Reason)

	first := candidates[0]
	assert.Equal(t, "Central bank raises rates", first.Title)
	assert.Equal(t, "https://Example.com/news/rates?utm_source=rss", first.Link)
	assert.Equal(t, "Benchmark rate up 25bp.", first.Content)
	assert.Equal(t, "A. Reporter", first.Author)
	require.NotNil(t, first.Published)
	assert.Equal(t, 2006, first.Published.Year())
	assert.Equal(t, time.UTC, first.Published.Location())
}

func TestUniversalExtractAtom(t *testing.T) {
	candidates, rejections, err := Extract(nil, []byte(atomBody))
	require.NoError(t, err)
	require.Empty(t, rejections)
	require.Len(t, candidates, 1)

	entry := candidates[0]
	assert.Equal(t, "Chip export controls widen", entry.Title)
	assert.Equal(t, "https://atom.example.org/chips", entry.Link)
	assert.Equal(t, "New entity list additions.", entry.Content)
	assert.Equal(t, "B. Writer", entry.Author)
	require.NotNil(t, entry.Published)
}

func TestExtractMalformedDocument(t *testing.T) {
	_, _, err := Extract(nil, []byte("<rss><channel><item>"))
	// xmlquery tolerates unclosed tags; either outcome must not panic.
	_ = err
}

func TestTemplateSelectorsOverrideUniversal(t *testing.T) {
	tmpl := &models.Template{
		Name: "custom",
		Selectors: map[string]models.FieldSelector{
			models.FieldAuthor: {Kind: models.SelectorLiteral, Default: "Newsdesk"},
			models.FieldTitle:  {Kind: models.SelectorXPath, Query: "./*[local-name()='title']", Required: true},
		},
	}
	candidates, rejections, err := Extract(tmpl, []byte(rssBody))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Len(t, rejections, 1)
	assert.Equal(t, "Newsdesk", candidates[0].Author)
	assert.Equal(t, "Central bank raises rates", candidates[0].Title)
}

func TestRequiredSelectorMissingRejects(t *testing.T) {
	tmpl := &models.Template{
		Name: "strict",
		Selectors: map[string]models.FieldSelector{
			models.FieldContent: {Kind: models.SelectorXPath, Query: "./nonexistent", Required: true},
		},
	}
	candidates, rejections, err := Extract(tmpl, []byte(atomBody))
	require.NoError(t, err)
	assert.Empty(t, candidates)
	require.Len(t, rejections, 1)
	assert.Equal(t, "extraction_failure:content", rejections[0].Reason)
}

func TestProcessingRules(t *testing.T) {
	body := `<?xml version="1.0"?>
<rss version="2.0"><channel><item>
  <title>Markup heavy</title>
  <link>https://example.com/markup</link>
  <description>&lt;p&gt;Read &lt;a href="https://x"&gt;the full story&lt;/a&gt; now.&lt;/p&gt; SPONSORED</description>
</item></channel></rss>`

	tmpl := &models.Template{
		Name: "clean",
		Processing: models.ProcessingRules{
			StripHTML:           true,
			NormalizeWhitespace: true,
			RemovePatterns:      []string{`SPONSORED`},
		},
	}
	candidates, _, err := Extract(tmpl, []byte(body))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Read the full story now.", candidates[0].Content)
}

func TestProcessingMaxLength(t *testing.T) {
	tmpl := &models.Template{
		Name:       "short",
		Processing: models.ProcessingRules{MaxContentLength: 9},
	}
	candidates, _, err := Extract(tmpl, []byte(rssBody))
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	assert.Equal(t, "Benchmark", candidates[0].Content)
}

func TestInvalidRemovePattern(t *testing.T) {
	tmpl := &models.Template{
		Name:       "broken",
		Processing: models.ProcessingRules{RemovePatterns: []string{"("}},
	}
	_, _, err := Extract(tmpl, []byte(rssBody))
	require.Error(t, err)
}

func TestSelectTemplate(t *testing.T) {
	domainTmpl := &models.Template{ID: 1, Name: "domain", MatchRules: []models.MatchRule{
		{Kind: models.MatchDomainEquals, Value: "example.com", Priority: 10},
	}}
	regexTmpl := &models.Template{ID: 2, Name: "regex", MatchRules: []models.MatchRule{
		{Kind: models.MatchURLRegex, Value: `example\.com/rss`, Priority: 20},
	}}
	templates := []*models.Template{domainTmpl, regexTmpl}

	feed := &models.Feed{URL: "https://example.com/rss.xml"}

	// Highest priority rule wins.
	assert.Equal(t, regexTmpl, SelectTemplate(feed, "", templates))

	// Explicit assignment overrides matching.
	assigned := int64(1)
	feed.TemplateID = &assigned
	assert.Equal(t, domainTmpl, SelectTemplate(feed, "", templates))

	// No match means universal fallback.
	other := &models.Feed{URL: "https://other.net/feed"}
	assert.Nil(t, SelectTemplate(other, "", templates))
}

func TestSelectTemplateContentType(t *testing.T) {
	tmpl := &models.Template{ID: 3, Name: "atom-only", MatchRules: []models.MatchRule{
		{Kind: models.MatchContentType, Value: "atom+xml", Priority: 5},
	}}
	feed := &models.Feed{URL: "https://example.com/feed"}
	assert.Equal(t, tmpl, SelectTemplate(feed, "application/atom+xml; charset=utf-8", []*models.Template{tmpl}))
	assert.Nil(t, SelectTemplate(feed, "application/rss+xml", []*models.Template{tmpl}))
}

func TestCanonicalLink(t *testing.T) {
	assert.Equal(t,
		"https://example.com/news/rates",
		CanonicalLink("HTTPS://Example.COM/news/rates/?utm_source=rss&utm_campaign=x#frag"))
	assert.Equal(t,
		"https://example.com/a?page=2",
		CanonicalLink("https://example.com/a?page=2&fbclid=abc"))
	assert.Equal(t, "not a url", CanonicalLink("  not a url "))
}

func TestContentHashStability(t *testing.T) {
	h1 := ContentHash("Central Bank Raises Rates", "https://example.com/news/rates?utm_source=rss", "Benchmark  rate up 25bp.")
	h2 := ContentHash("central bank raises rates", "HTTPS://EXAMPLE.com/news/rates", "benchmark rate up 25bp.")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	h3 := ContentHash("Different title", "https://example.com/news/rates", "Benchmark rate up 25bp.")
	assert.NotEqual(t, h1, h3)
}
