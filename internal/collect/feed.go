package collect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/TobiSchelling/sprintlog/internal/report"
)

const maxPerFeed = 50

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedSource reads progress reports published as RSS/Atom items.
type FeedSource struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
	logger *zap.Logger
	now    func() time.Time
}

// NewFeedSource creates a FeedSource.
func NewFeedSource(feeds []FeedConfig, logger *zap.Logger) *FeedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedSource{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		logger: logger,
		now:    time.Now,
	}
}

// Fetch reads all configured feeds and returns the report submissions
// published within daysBack. A feed that fails to load is logged and
// skipped.
func (fs *FeedSource) Fetch(ctx context.Context, daysBack int) []Submission {
	cutoff := fs.now().AddDate(0, 0, -daysBack)
	var all []Submission

	for _, fc := range fs.feeds {
		name := fc.Name
		if name == "" {
			name = fc.URL
		}

		feed, err := fs.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			fs.logger.Warn("failed to parse feed", zap.String("feed", fc.URL), zap.Error(err))
			continue
		}
		subs := fs.submissions(feed, cutoff)
		all = append(all, subs...)
		fs.logger.Info("feed parsed",
			zap.String("feed", name),
			zap.Int("reports", len(subs)),
			zap.Int("days_back", daysBack),
		)
	}

	return all
}

func (fs *FeedSource) submissions(feed *gofeed.Feed, cutoff time.Time) []Submission {
	var subs []Submission
	for _, item := range feed.Items {
		if len(subs) >= maxPerFeed {
			break
		}
		if !isWithinWindow(item, cutoff) {
			continue
		}
		sub, err := parseItem(item)
		if err != nil {
			fs.logger.Debug("skipping feed item", zap.String("title", item.Title), zap.Error(err))
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}

func parseItem(item *gofeed.Item) (Submission, error) {
	storyID, ok := storyIDForItem(item)
	if !ok {
		return Submission{}, fmt.Errorf("no story id in categories or title")
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	text := htmlToText(body)
	if strings.TrimSpace(text) == "" {
		return Submission{}, fmt.Errorf("empty report body")
	}

	origin := item.Link
	if origin == "" {
		origin = item.GUID
	}
	return Submission{StoryID: storyID, Text: text, Source: "feed", Origin: origin}, nil
}

// storyIDForItem prefers a category that is an item id, then the first id
// in the title.
func storyIDForItem(item *gofeed.Item) (string, bool) {
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		if report.IsItemID(c) {
			return c, true
		}
	}
	return report.FindItemID(item.Title)
}

func isWithinWindow(item *gofeed.Item, cutoff time.Time) bool {
	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		return true // benefit of the doubt
	}
	return !published.Before(cutoff)
}

// htmlToText turns an item body into report text. Plain text passes
// through unescaped; HTML is walked as a node tree and rendered back into
// the report grammar (headings as #, list items as indented "* " bullets,
// strong as **).
func htmlToText(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil || !hasMarkup(doc) {
		return strings.TrimSpace(html.UnescapeString(body))
	}

	var w textWriter
	w.atLineStart = true
	w.walk(doc, 0, false)

	lines := strings.Split(w.sb.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// hasMarkup reports whether the parsed document has any element besides
// the html, head and body wrappers the parser adds around plain text.
func hasMarkup(n *html.Node) bool {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "html", "head", "body":
		default:
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasMarkup(c) {
			return true
		}
	}
	return false
}

type textWriter struct {
	sb          strings.Builder
	atLineStart bool
}

func (w *textWriter) newline() {
	if !w.atLineStart {
		w.sb.WriteString("\n")
		w.atLineStart = true
	}
}

// raw writes s as is.
func (w *textWriter) raw(s string) {
	if s == "" {
		return
	}
	w.sb.WriteString(s)
	w.atLineStart = strings.HasSuffix(s, "\n")
}

// text writes flowing text with whitespace runs collapsed.
func (w *textWriter) text(s string) {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" && !w.atLineStart && !w.endsWithSpace() {
			w.raw(" ")
		}
		return
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) && !w.atLineStart && !w.endsWithSpace() {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	w.raw(out)
}

func (w *textWriter) endsWithSpace() bool {
	str := w.sb.String()
	return str != "" && isSpace(str[len(str)-1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}

// walk renders n. listDepth counts enclosing ul/ol elements.
func (w *textWriter) walk(n *html.Node, listDepth int, pre bool) {
	switch n.Type {
	case html.TextNode:
		if pre {
			w.raw(n.Data)
		} else {
			w.text(n.Data)
		}
		return
	case html.ElementNode:
	default:
		w.children(n, listDepth, pre)
		return
	}

	switch n.Data {
	case "script", "style", "noscript", "head":
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.newline()
		w.raw(strings.Repeat("#", int(n.Data[1]-'0')) + " ")
		w.children(n, listDepth, pre)
		w.newline()
	case "ul", "ol":
		w.newline()
		w.children(n, listDepth+1, pre)
		w.newline()
	case "li":
		w.newline()
		indent := listDepth - 1
		if indent < 0 {
			indent = 0
		}
		w.raw(strings.Repeat("    ", indent) + "* ")
		w.children(n, listDepth, pre)
		w.newline()
	case "strong", "b":
		w.raw("**")
		w.children(n, listDepth, pre)
		w.raw("**")
	case "br":
		w.raw("\n")
	case "pre":
		w.newline()
		w.children(n, listDepth, true)
		w.newline()
	case "p", "div", "tr", "blockquote", "section", "article", "table":
		w.newline()
		w.children(n, listDepth, pre)
		w.newline()
	default:
		w.children(n, listDepth, pre)
	}
}

func (w *textWriter) children(n *html.Node, listDepth int, pre bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, listDepth, pre)
	}
}
