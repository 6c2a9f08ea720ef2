package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/sprintlog/internal/report"
)

const reportBody = `## Sprint-7 : WK-42 overview

### Ada

#### WK-42 Fix crash
* **2026-01-20**:
    * **[Note]** investigating &amp; reproducing
`

func rssFeed(now time.Time) string {
	recent := now.Add(-24 * time.Hour).Format(time.RFC1123Z)
	old := now.Add(-30 * 24 * time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Story reports</title>
  <item>
    <title>Daily check</title>
    <link>https://reports.example.com/1</link>
    <category>team</category>
    <category>WK-42</category>
    <pubDate>%[1]s</pubDate>
    <description><![CDATA[%[3]s]]></description>
  </item>
  <item>
    <title>Progress for OPS-7</title>
    <link>https://reports.example.com/2</link>
    <pubDate>%[1]s</pubDate>
    <content:encoded><![CDATA[<p>## Sprint-7 : OPS-7</p><p>### Bo</p><pre>#### OPS-7 Rotate keys
* **2026-01-21**:
    * **[Done]** rotated</pre>]]></content:encoded>
  </item>
  <item>
    <title>Stale WK-1</title>
    <link>https://reports.example.com/3</link>
    <pubDate>%[2]s</pubDate>
    <description>old</description>
  </item>
  <item>
    <title>No story here</title>
    <link>https://reports.example.com/4</link>
    <pubDate>%[1]s</pubDate>
    <description>text</description>
  </item>
</channel>
</rss>`, recent, old, reportBody)
}

func TestFeedSourceFetch(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFeed(now))
	}))
	defer srv.Close()

	fs := NewFeedSource([]FeedConfig{
		{URL: srv.URL + "/", Name: "reports"},
		{URL: srv.URL + "/missing", Name: "broken"},
	}, nil)
	fs.parser.Client = srv.Client()

	subs := fs.Fetch(context.Background(), 7)
	require.Len(t, subs, 2)

	assert.Equal(t, "WK-42", subs[0].StoryID)
	assert.Equal(t, "feed", subs[0].Source)
	assert.Equal(t, "https://reports.example.com/1", subs[0].Origin)
	records := report.Parse(subs[0].Text)
	require.Len(t, records, 1)
	assert.Equal(t, "investigating & reproducing", records[0].Text)

	assert.Equal(t, "OPS-7", subs[1].StoryID)
	records = report.Parse(subs[1].Text)
	require.Len(t, records, 1)
	assert.Equal(t, "Bo", records[0].User)
	assert.Equal(t, "rotated", records[0].Text)
}

func TestParseItemNeedsStoryAndBody(t *testing.T) {
	_, err := parseItem(&gofeed.Item{Title: "nothing", Description: "x"})
	assert.Error(t, err)

	_, err = parseItem(&gofeed.Item{Title: "WK-1 report", Description: "   "})
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText("<p>line one</p><p>line&nbsp;two<br/>line three</p>")
	assert.Equal(t, "line one\nline two\nline three", got)

	plain := "## A : b\r\n    * **[X]** y &lt;z&gt;"
	assert.Equal(t, "## A : b\n    * **[X]** y <z>", htmlToText(plain))
	assert.False(t, strings.Contains(htmlToText("<div><span>a</span></div>"), "<"))
}

const listReportHTML = `<h2>🚁 Sprint-7 : WK-42 overview</h2>
<h3>👤 Ada</h3>
<h4>🔹 WK-42 Fix crash</h4>
<ul>
  <li><strong>2026-01-20</strong>:
    <ul>
      <li><strong>[Note]</strong> investigating</li>
      <li><strong>[Worklog 1h]</strong></li>
    </ul>
  </li>
  <li><strong>[2026-01-21]</strong>:
    <ul><li><strong>[Comment]</strong> fixed &amp; verified</li></ul>
  </li>
</ul>`

func TestHTMLToTextRendersLists(t *testing.T) {
	got := htmlToText(listReportHTML)
	want := strings.Join([]string{
		"## 🚁 Sprint-7 : WK-42 overview",
		"### 👤 Ada",
		"#### 🔹 WK-42 Fix crash",
		"* **2026-01-20**:",
		"    * **[Note]** investigating",
		"    * **[Worklog 1h]**",
		"* **[2026-01-21]**:",
		"    * **[Comment]** fixed & verified",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestParseItemHTMLListReport(t *testing.T) {
	sub, err := parseItem(&gofeed.Item{
		Title:   "Daily check WK-42",
		Link:    "https://reports.example.com/5",
		Content: listReportHTML,
	})
	require.NoError(t, err)
	assert.Equal(t, "WK-42", sub.StoryID)

	records := report.Parse(sub.Text)
	require.Len(t, records, 3)
	assert.Equal(t, "Ada", records[0].User)
	assert.Equal(t, "WK-42", records[0].ItemID)
	assert.Equal(t, "Fix crash", records[0].Title())
	assert.Equal(t, "2026-01-20", records[0].Date)
	assert.Equal(t, "Note", records[0].Tag)
	assert.Equal(t, "investigating", records[0].Text)
	assert.Equal(t, "Worklog 1h", records[1].Tag)
	assert.Empty(t, records[1].Text)
	assert.Equal(t, "2026-01-21", records[2].Date)
	assert.Equal(t, "fixed & verified", records[2].Text)
}
