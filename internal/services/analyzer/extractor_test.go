package analyzer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commentHTML renders one comment the way the post page lays it out: an
// author profile link and the comment text inside a shared container.
func commentHTML(author, text string) string {
	// Mentions inside the text render as links whose text carries the @.
	rendered := text
	for _, mention := range ExtractMentions(text) {
		tag := "@" + mention
		rendered = strings.ReplaceAll(rendered, tag,
			fmt.Sprintf(`<a href="/%s/">%s</a>`, mention, tag))
	}
	return fmt.Sprintf(`
		<li>
			<div class="html-div">
				<div>
					<a href="/%s/">%s</a>
					<span dir="auto">%s</span>
				</div>
			</div>
		</li>`, author, author, rendered)
}

func commentPage(comments ...string) string {
	return `<body><main><ul>` + strings.Join(comments, "\n") + `</ul></main></body>`
}

func TestParseCandidates(t *testing.T) {
	html := commentPage(
		commentHTML("winner_user", "good luck @friend_one @friend_two"),
		commentHTML("single_tag", "only @friend_one here"),
		commentHTML("no_tags", "great giveaway everyone"),
	)

	candidates, err := ParseCandidates(html, []string{"brand_a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"winner_user"}, candidates)
}

func TestParseCandidatesExcludesCompetitorAuthors(t *testing.T) {
	html := commentPage(
		commentHTML("brand_a", "congrats @friend_one @friend_two"),
		commentHTML("honest_user", "yay @friend_one @friend_two"),
	)

	candidates, err := ParseCandidates(html, []string{"Brand_A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"honest_user"}, candidates)
}

func TestParseCandidatesCompetitorMentionsDoNotCount(t *testing.T) {
	html := commentPage(
		commentHTML("hopeful", "love you @brand_a @brand_b"),
		commentHTML("qualified", "tagging @real_friend @other_friend"),
	)

	candidates, err := ParseCandidates(html, []string{"brand_a", "brand_b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"qualified"}, candidates)
}

func TestParseCandidatesDeduplicatesPreservingFirstCasing(t *testing.T) {
	html := commentPage(
		commentHTML("Winner_User", "first entry @friend_one @friend_two"),
		commentHTML("winner_user", "second entry @friend_three @friend_four"),
	)

	candidates, err := ParseCandidates(html, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Winner_User"}, candidates)
}

func TestParseCandidatesSkipsUnresolvableAuthors(t *testing.T) {
	// Comment text with no profile link anywhere in its ancestry.
	html := commentPage(`
		<li>
			<div class="html-div">
				<div>
					<span dir="auto">orphan comment @friend_one @friend_two</span>
				</div>
			</div>
		</li>`)

	candidates, err := ParseCandidates(html, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseCandidatesIgnoresReservedPathLinks(t *testing.T) {
	html := commentPage(`
		<li>
			<div class="html-div">
				<div>
					<a href="/explore/">explore</a>
					<span dir="auto">unattributed @friend_one @friend_two</span>
				</div>
			</div>
		</li>`)

	candidates, err := ParseCandidates(html, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestParseCandidatesEmptyPage(t *testing.T) {
	candidates, err := ParseCandidates("<body></body>", []string{"brand_a"})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
