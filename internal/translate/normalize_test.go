package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roles(msgs []chatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.role
	}
	return out
}

// assertAlternating checks the post-normalization invariant: roles
// strictly alternate user, assistant, ..., user.
func assertAlternating(t *testing.T, msgs []chatMessage) {
	t.Helper()
	require.NotEmpty(t, msgs)
	assert.Equal(t, roleUser, msgs[0].role)
	assert.Equal(t, roleUser, msgs[len(msgs)-1].role)
	for i := 1; i < len(msgs); i++ {
		assert.NotEqual(t, msgs[i-1].role, msgs[i].role, "adjacent roles equal at %d", i)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	out := normalizeConversation(nil)
	require.Len(t, out, 1)
	assert.Equal(t, roleUser, out[0].role)
	assert.Equal(t, placeholder, out[0].text)
}

func TestNormalizeFiltersOtherRoles(t *testing.T) {
	out := normalizeConversation([]chatMessage{
		{role: "system", text: "sys"},
		{role: roleUser, text: "hi"},
	})
	assert.Equal(t, []string{roleUser}, roles(out))
	assert.Equal(t, "hi", out[0].text)
}

func TestNormalizeLeadingAssistant(t *testing.T) {
	out := normalizeConversation([]chatMessage{
		{role: roleAssistant, text: "a"},
		{role: roleUser, text: "u"},
	})
	assert.Equal(t, []string{roleUser, roleAssistant, roleUser}, roles(out))
	assert.Equal(t, placeholder, out[0].text)
	assertAlternating(t, out)
}

func TestNormalizeConsecutiveRoles(t *testing.T) {
	out := normalizeConversation([]chatMessage{
		{role: roleUser, text: "u1"},
		{role: roleUser, text: "u2"},
		{role: roleAssistant, text: "a1"},
		{role: roleAssistant, text: "a2"},
		{role: roleUser, text: "u3"},
	})
	assert.Equal(t, []string{
		roleUser, roleAssistant, roleUser, roleAssistant, roleUser, roleAssistant, roleUser,
	}, roles(out))
	assert.Equal(t, placeholder, out[1].text)
	assert.Equal(t, placeholder, out[4].text)
	assertAlternating(t, out)
}

func TestNormalizeTrailingAssistant(t *testing.T) {
	out := normalizeConversation([]chatMessage{
		{role: roleUser, text: "u"},
		{role: roleAssistant, text: "a"},
	})
	assert.Equal(t, []string{roleUser, roleAssistant, roleUser}, roles(out))
	assert.Equal(t, placeholder, out[2].text)
}

func TestNormalizeIdempotent(t *testing.T) {
	in := []chatMessage{
		{role: roleAssistant, text: "a"},
		{role: roleAssistant, text: "b"},
		{role: roleUser, text: "c"},
	}
	once := normalizeConversation(in)
	twice := normalizeConversation(once)
	assert.Equal(t, once, twice)
	assertAlternating(t, once)
}

func TestCompositeToolID(t *testing.T) {
	assert.Equal(t, "t1", CompositeToolID("t1", ""))
	assert.Equal(t, "t1:m1", CompositeToolID("t1", "m1"))

	tc, mc := ParseCompositeToolID("t1:m1")
	assert.Equal(t, "t1", tc)
	assert.Equal(t, "m1", mc)

	tc, mc = ParseCompositeToolID("bare")
	assert.Equal(t, "bare", tc)
	assert.Equal(t, "", mc)
}

func TestParseModelSuffixes(t *testing.T) {
	m := ParseModel("gpt-5")
	assert.Equal(t, "gpt-5", m.Base)
	assert.False(t, m.Thinking)

	m = ParseModel("claude-4.5-sonnet-thinking")
	assert.Equal(t, "claude-4.5-sonnet", m.Base)
	assert.True(t, m.Thinking)

	m = ParseModel("gpt-5-thinking-max-online")
	assert.Equal(t, "gpt-5", m.Base)
	assert.True(t, m.Thinking)
	assert.True(t, m.Max)
	assert.True(t, m.Online)
}
