package tree

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeJSONKeepsFolderMarker(t *testing.T) {
	input := `[{"id":"1","name":"Empty","children":[]},{"id":"2","name":"Leaf","url":"https://a.com","tags":[]}]`

	var f Forest
	require.NoError(t, json.Unmarshal([]byte(input), &f))

	require.Len(t, f, 2)
	assert.True(t, f[0].IsFolder())
	assert.Empty(t, f[0].Children)
	assert.False(t, f[1].IsFolder())
	assert.NotNil(t, f[1].Tags, "empty tags list must survive decoding")

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
}

func TestNodeJSONOmitsAbsentFields(t *testing.T) {
	out, err := json.Marshal(&Node{ID: "x", Name: "X"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","name":"X"}`, string(out))
}

func TestNodeJSONFieldOrder(t *testing.T) {
	open := false
	n := &Node{ID: "f", Name: "F", Icon: "i", Tags: []string{"z", "a"}, IsOpen: &open, Children: []*Node{}}

	out, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"f","name":"F","icon":"i","tags":["z","a"],"isOpen":false,"children":[]}`, string(out))
}

func TestCloneIsDeep(t *testing.T) {
	f := sample()
	c := f.Clone()
	c[0].Children[0].Name = "changed"

	assert.Equal(t, "React", f[0].Children[0].Name)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample()))
	assert.NoError(t, Validate(Forest{}))

	tests := []struct {
		name   string
		forest Forest
	}{
		{"nil forest", nil},
		{"empty id", Forest{leaf("", "x", "")}},
		{"duplicate nested id", Forest{folder("a", "A", leaf("a", "A", ""))}},
		{"folder with url", Forest{{ID: "f", Name: "F", URL: "https://x", Children: []*Node{}}}},
		{"null node", Forest{nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.forest), ErrInvalidForest)
		})
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC)
	thisMonth := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC).Unix()
	lastMonth := time.Date(2024, time.May, 30, 0, 0, 0, 0, time.UTC).Unix()

	f := sample()
	f[0].AddDate = formatUnix(thisMonth)
	f[1].Children[0].AddDate = formatUnix(lastMonth)
	f[2].AddDate = "not-a-number"
	f[2].Tags = []string{"blog", "dev"}
	f[1].Tags = []string{"dev"}

	s := ComputeStats(f, now)
	assert.Equal(t, Stats{Total: 7, Folders: 3, Bookmarks: 4, MonthlyAdded: 1, Tags: 2}, s)
}

func TestTags(t *testing.T) {
	f := sample()
	f[0].Tags = []string{"frontend", "dev"}
	f[0].Children[0].Tags = []string{"react", "frontend"}

	assert.Equal(t, []string{"dev", "frontend", "react"}, Tags(f))
	assert.Empty(t, Tags(Forest{}))
}

func TestSearch(t *testing.T) {
	f := sample()
	f[1].Children[0].Tags = []string{"Git"}

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"name substring", Query{Term: "tail"}, []string{"tailwind"}},
		{"case insensitive", Query{Term: "GITHUB"}, []string{"github"}},
		{"url substring", Query{Term: "dev.to"}, []string{"blog"}},
		{"tag", Query{Tag: "git"}, []string{"github"}},
		{"url glob", Query{URLGlob: "https://*.dev"}, []string{"react"}},
		{"glob and term", Query{URLGlob: "https://**", Term: "git"}, []string{"github"}},
		{"everything", Query{}, []string{"dev", "react", "styles", "tailwind", "tools", "github", "blog"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := Search(f, tt.q)
			require.NoError(t, err)

			got := make([]string, 0, len(matches))
			for _, m := range matches {
				got = append(got, m.Node.ID)
				orig, err := Find(f, m.Node.ID)
				require.NoError(t, err)
				assert.Equal(t, orig.IsFolder(), m.Node.IsFolder(), m.Node.ID)
				assert.Empty(t, m.Node.Children)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	matches, err := Search(f, Query{Term: "tailwind"})
	require.NoError(t, err)
	assert.Equal(t, "styles", matches[0].ParentID)

	_, err = Search(f, Query{URLGlob: "[unclosed"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSearchFolderHitKeepsChildrenKey(t *testing.T) {
	f := Forest{{ID: "F", Name: "Dev", Children: []*Node{{ID: "a", Name: "A", URL: "https://a.dev"}}}}

	matches, err := Search(f, Query{Term: "dev"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "F", matches[0].Node.ID)
	assert.True(t, matches[0].Node.IsFolder())

	data, err := json.Marshal(matches[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"node":{"id":"F","name":"Dev","children":[]},"parentId":""}`, string(data))
	assert.Len(t, f[0].Children, 1)
}

func TestWalkSkipsNilNodes(t *testing.T) {
	f := Forest{nil, {ID: "q", Name: "Q", Children: []*Node{nil, {ID: "r", Name: "R"}}}}

	assert.NotPanics(t, func() {
		n, err := Find(f, "r")
		require.NoError(t, err)
		assert.Equal(t, "R", n.Name)
	})
	assert.Equal(t, 2, f.Count())
	assert.Equal(t, []string{"q", "r"}, f.IDs())

	_, err := Find(f, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func formatUnix(sec int64) string {
	return strconv.FormatInt(sec, 10)
}
