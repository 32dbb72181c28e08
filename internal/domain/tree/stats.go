package tree

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Stats summarizes a forest for the sidebar.
type Stats struct {
	Total        int `json:"total"`
	Folders      int `json:"folders"`
	Bookmarks    int `json:"bookmarks"`
	MonthlyAdded int `json:"monthlyAdded"`
	Tags         int `json:"tags"`
}

// ComputeStats counts nodes, folders and the nodes whose addDate (Unix
// seconds) falls in the calendar month of now.
func ComputeStats(f Forest, now time.Time) Stats {
	var s Stats
	year, month, _ := now.Date()
	f.Walk(func(n *Node, _ string) bool {
		s.Total++
		if n.IsFolder() {
			s.Folders++
		} else {
			s.Bookmarks++
		}
		if added, ok := addedAt(n, now.Location()); ok {
			y, m, _ := added.Date()
			if y == year && m == month {
				s.MonthlyAdded++
			}
		}
		return true
	})
	s.Tags = len(Tags(f))
	return s
}

func addedAt(n *Node, loc *time.Location) (time.Time, bool) {
	if n.AddDate == "" {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(n.AddDate, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).In(loc), true
}

// Tags returns every distinct tag in the forest, sorted.
func Tags(f Forest) []string {
	seen := make(map[string]struct{})
	f.Walk(func(n *Node, _ string) bool {
		for _, tag := range n.Tags {
			seen[tag] = struct{}{}
		}
		return true
	})
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Query selects nodes for Search. Term matches name, url or any tag,
// case-insensitively. URLGlob is a doublestar pattern applied to the url.
type Query struct {
	Term    string
	URLGlob string
	Tag     string
}

// Match is a search hit.
type Match struct {
	Node     *Node  `json:"node"`
	ParentID string `json:"parentId"`
}

// Search returns the nodes satisfying every non-empty criterion of q, in
// depth-first order. Matched folders are returned without their children.
func Search(f Forest, q Query) ([]Match, error) {
	if q.URLGlob != "" && !doublestar.ValidatePattern(q.URLGlob) {
		return nil, invalidTarget("bad url pattern %q", q.URLGlob)
	}
	term := strings.ToLower(q.Term)

	matches := make([]Match, 0)
	f.Walk(func(n *Node, parentID string) bool {
		if matchNode(n, term, q) {
			hit := n.shallow()
			if n.IsFolder() {
				hit.Children = []*Node{}
			}
			matches = append(matches, Match{Node: hit, ParentID: parentID})
		}
		return true
	})
	return matches, nil
}

func matchNode(n *Node, term string, q Query) bool {
	if q.URLGlob != "" {
		if n.URL == "" {
			return false
		}
		if ok, _ := doublestar.Match(q.URLGlob, n.URL); !ok {
			return false
		}
	}
	if q.Tag != "" && !containsFold(n.Tags, q.Tag) {
		return false
	}
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Name), term) || strings.Contains(strings.ToLower(n.URL), term) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
