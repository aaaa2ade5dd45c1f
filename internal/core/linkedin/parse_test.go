package linkedin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func TestParsePost(t *testing.T) {
	const pageURL = "https://www.linkedin.com/posts/jane-doe_go-activity-7100000000000000000-AbCd"

	t.Run("update-components layout", func(t *testing.T) {
		post, err := ParsePost(readFixture(t, "post_update_components.html"), pageURL)
		require.NoError(t, err)

		assert.Equal(t, "Jane Doe", post.Author)
		assert.Equal(t, "Staff Engineer at Example Corp", post.Headline)
		assert.Equal(t, "2d •", post.Date)
		assert.Equal(t, "Shipping Go services is mostly about boring things.\n\nLogging, config and tests.", post.Text)
		assert.Equal(t, []string{
			"https://media.licdn.com/dms/image/one.jpg",
			"https://www.linkedin.com/dms/image/two.png",
		}, post.ImageURLs)
	})

	t.Run("feed-shared layout", func(t *testing.T) {
		post, err := ParsePost(readFixture(t, "post_feed_shared.html"), pageURL)
		require.NoError(t, err)

		assert.Equal(t, "John Smith", post.Author)
		assert.Equal(t, "Founder", post.Headline)
		assert.Equal(t, "1w", post.Date)
		assert.Equal(t, "Legacy layout post", post.Text)
		assert.Empty(t, post.ImageURLs)
	})

	t.Run("unavailable post", func(t *testing.T) {
		_, err := ParsePost(readFixture(t, "post_unavailable.html"), pageURL)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrPostNotFound))
	})

	t.Run("no container", func(t *testing.T) {
		_, err := ParsePost("<html><body><p>feed</p></body></html>", pageURL)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrPostNotFound))
	})

	t.Run("missing author", func(t *testing.T) {
		_, err := ParsePost(readFixture(t, "post_no_author.html"), pageURL)
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrParseFailed))
	})
}

func TestParsedPostToStored(t *testing.T) {
	p := ParsedPost{Author: "A", Text: "T", ImageURLs: []string{"https://media.licdn.com/x.jpg"}}

	stored := p.Post(nil)
	assert.Equal(t, "A", stored.Author)
	assert.NotNil(t, stored.Images)
	assert.Empty(t, stored.Images, "external URLs are never persisted")

	stored = p.Post([]string{"img_0.jpg"})
	assert.Equal(t, []string{"img_0.jpg"}, stored.Images)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Jane", firstLine("\n   Jane  \nJane\n"))
	assert.Equal(t, "", firstLine("   \n  "))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a\n\nb", cleanText("  a \n\n\n\n  b  "))
	assert.Equal(t, "", cleanText(""))
}
