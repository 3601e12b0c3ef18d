// ABOUTME: Tests for the cross-conversation unread aggregator
// ABOUTME: Set semantics: conversations awaiting a reply, not message totals

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnreadAggregatorSettlesOnOperatorReply(t *testing.T) {
	agg := NewUnreadAggregator()
	agg.Seed([]string{"7", "9"})
	assert.Equal(t, 2, agg.Count())

	agg.MarkReplied("7")
	assert.Equal(t, 1, agg.Count())
	assert.Equal(t, []string{"9"}, agg.Snapshot())
}

func TestUnreadAggregatorCountsConversationsNotMessages(t *testing.T) {
	agg := NewUnreadAggregator()
	agg.MarkUnreplied("3")
	agg.MarkUnreplied("3")
	agg.MarkUnreplied("3")
	assert.Equal(t, 1, agg.Count())
	assert.True(t, agg.Contains("3"))
}

func TestUnreadAggregatorReplyToSettledConversationIsNoop(t *testing.T) {
	agg := NewUnreadAggregator()
	agg.MarkReplied("5")
	assert.Equal(t, 0, agg.Count())
}

func TestUnreadAggregatorSeedReplacesPriorState(t *testing.T) {
	agg := NewUnreadAggregator()
	agg.MarkUnreplied("1")
	agg.Seed([]string{"2", "4"})

	assert.False(t, agg.Contains("1"))
	assert.Equal(t, []string{"2", "4"}, agg.Snapshot())
}
