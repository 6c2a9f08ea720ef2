package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/TobiSchelling/sprintlog/internal/ledger"
	"github.com/TobiSchelling/sprintlog/internal/report"
)

type dayGroup struct {
	Date    string
	Entries []report.ActivityRecord
}

type itemGroup struct {
	ItemID string
	Title  string
	Days   []dayGroup
}

type userGroup struct {
	User  string
	Items []itemGroup
}

// groupRecords nests records by user, then item, then date. Users and
// items keep first-seen order; dates are newest first.
func groupRecords(records []report.ActivityRecord) []userGroup {
	var users []userGroup
	userIdx := map[string]int{}
	itemIdx := map[[2]string]int{}

	for _, rec := range records {
		ui, ok := userIdx[rec.User]
		if !ok {
			ui = len(users)
			userIdx[rec.User] = ui
			users = append(users, userGroup{User: rec.User})
		}
		u := &users[ui]

		key := [2]string{rec.User, rec.ItemID}
		ii, ok := itemIdx[key]
		if !ok {
			ii = len(u.Items)
			itemIdx[key] = ii
			u.Items = append(u.Items, itemGroup{ItemID: rec.ItemID})
		}
		item := &u.Items[ii]
		if t := rec.Title(); t != "" {
			item.Title = t
		}

		di := -1
		for i := range item.Days {
			if item.Days[i].Date == rec.Date {
				di = i
				break
			}
		}
		if di < 0 {
			item.Days = append(item.Days, dayGroup{Date: rec.Date})
			di = len(item.Days) - 1
		}
		item.Days[di].Entries = append(item.Days[di].Entries, rec)
	}

	for ui := range users {
		for ii := range users[ui].Items {
			days := users[ui].Items[ii].Days
			sort.SliceStable(days, func(a, b int) bool { return days[a].Date > days[b].Date })
		}
	}
	return users
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if id := strings.TrimSpace(r.URL.Query().Get("story")); id != "" {
		http.Redirect(w, r, "/stories/"+id, http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "index.html", nil)
}

func (s *Server) handleStoryPage(w http.ResponseWriter, r *http.Request) {
	storyID := strings.TrimSpace(r.PathValue("id"))
	view, err := s.ledger.Story(r.Context(), storyID, r.URL.Query().Get("cycle"))
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	data := map[string]any{"StoryID": storyID}
	if view != nil {
		data["View"] = view
		data["Users"] = groupRecords(view.Records)
	} else {
		status = http.StatusNotFound
	}
	s.render(w, status, "story.html", data)
}
