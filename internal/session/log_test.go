// ABOUTME: Tests for the active conversation message log
// ABOUTME: Generation-guarded opens, append ordering, send and delete guards

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/chatdesk/internal/api"
)

func TestMessageLogOpenLoadsHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.history["1"] = []api.Message{
		msg("m1", "1", "c1", "first", time.Now().Add(-2*time.Minute)),
		msg("m2", "1", "op", "second", time.Now().Add(-time.Minute)),
	}

	log := NewMessageLog(backend, nil)
	defer log.Close()

	require.NoError(t, log.Open(context.Background(), "1"))
	assert.Equal(t, "1", log.ConversationID())

	got := log.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestMessageLogLaterOpenSupersedesSlowFetch(t *testing.T) {
	backend := newFakeBackend()
	backend.history["a"] = []api.Message{msg("a1", "a", "c1", "from a", time.Now())}
	backend.history["b"] = []api.Message{msg("b1", "b", "c2", "from b", time.Now())}

	log := NewMessageLog(backend, nil)
	defer log.Close()

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.fetchGate = gate
	backend.mu.Unlock()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- log.Open(context.Background(), "a")
	}()

	// Wait for the first fetch to be in flight, then open b without a gate.
	require.Eventually(t, func() bool { return backend.fetchCount() == 1 }, time.Second, time.Millisecond)
	backend.mu.Lock()
	backend.fetchGate = nil
	backend.mu.Unlock()
	require.NoError(t, log.Open(context.Background(), "b"))

	// Release the stale fetch; its result must be discarded, not surfaced.
	close(gate)
	require.NoError(t, <-firstDone)

	assert.Equal(t, "b", log.ConversationID())
	got := log.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
}

func TestMessageLogMergesLiveArrivalDuringFetch(t *testing.T) {
	backend := newFakeBackend()
	backend.history["1"] = []api.Message{msg("m1", "1", "c1", "history", time.Now().Add(-time.Minute))}

	log := NewMessageLog(backend, nil)
	defer log.Close()

	gate := make(chan struct{})
	backend.mu.Lock()
	backend.fetchGate = gate
	backend.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- log.Open(context.Background(), "1")
	}()
	require.Eventually(t, func() bool { return backend.fetchCount() == 1 }, time.Second, time.Millisecond)

	// Lands on the live channel while the history fetch is in flight. m1
	// arrives twice, once live and once in the history.
	require.True(t, log.AppendIncoming(msg("m2", "1", "c1", "live", time.Now())))
	log.AppendIncoming(msg("m1", "1", "c1", "history", time.Now().Add(-time.Minute)))

	close(gate)
	require.NoError(t, <-done)

	got := log.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestMessageLogAppendPreservesArrivalOrder(t *testing.T) {
	log := NewMessageLog(newFakeBackend(), nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	ids := []string{"m3", "m1", "m2"}
	for _, id := range ids {
		require.True(t, log.AppendIncoming(msg(id, "1", "c1", "x", time.Now())))
	}

	got := log.Messages()
	require.Len(t, got, 3)
	for i, id := range ids {
		assert.Equal(t, id, got[i].ID)
	}
}

func TestMessageLogDropsDuplicateDelivery(t *testing.T) {
	log := NewMessageLog(newFakeBackend(), nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	require.True(t, log.AppendIncoming(msg("m1", "1", "c1", "once", time.Now())))
	assert.False(t, log.AppendIncoming(msg("m1", "1", "c1", "once", time.Now())))
	assert.Len(t, log.Messages(), 1)
}

func TestMessageLogIgnoresOtherConversations(t *testing.T) {
	log := NewMessageLog(newFakeBackend(), nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	assert.False(t, log.AppendIncoming(msg("m1", "2", "c2", "elsewhere", time.Now())))
	assert.Empty(t, log.Messages())
}

func TestMessageLogSendWithoutOpenConversationIssuesNoRequest(t *testing.T) {
	backend := newFakeBackend()
	log := NewMessageLog(backend, nil)
	defer log.Close()

	err := log.Send(context.Background(), "hello?")
	require.ErrorIs(t, err, ErrNoConversation)
	assert.Equal(t, 0, backend.sendCount())
}

func TestMessageLogSendRejectsEmptyWithoutRequest(t *testing.T) {
	backend := newFakeBackend()
	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	err := log.Send(context.Background(), "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, 0, backend.sendCount(), "no request may be issued for an empty send")
}

func TestMessageLogSendSubmitsDraftWithFreshKey(t *testing.T) {
	backend := newFakeBackend()
	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	log.StageAttachment(api.Upload{FileName: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf")})
	log.StageVoice(api.Upload{FileName: "clip.webm", ContentType: "audio/webm", Content: []byte("audio")})
	require.NoError(t, log.Send(context.Background(), "see attached"))

	backend.mu.Lock()
	require.Len(t, backend.sendCalls, 1)
	call := backend.sendCalls[0]
	backend.mu.Unlock()

	assert.Equal(t, "1", call.conversationID)
	assert.Equal(t, "see attached", call.req.Body)
	require.Len(t, call.req.Attachments, 1)
	assert.Equal(t, "report.pdf", call.req.Attachments[0].FileName)
	require.NotNil(t, call.req.Voice)
	assert.Equal(t, "clip.webm", call.req.Voice.FileName)
	_, err := uuid.Parse(call.req.IdempotencyKey)
	assert.NoError(t, err)

	// Draft is consumed; a bare follow-up send has nothing left to carry.
	require.ErrorIs(t, log.Send(context.Background(), ""), ErrEmptyMessage)

	require.NoError(t, log.Send(context.Background(), "again"))
	backend.mu.Lock()
	second := backend.sendCalls[1]
	backend.mu.Unlock()
	assert.NotEqual(t, call.req.IdempotencyKey, second.req.IdempotencyKey)
}

func TestMessageLogSendFailureRestoresDraft(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("network down")

	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	log.StageAttachment(api.Upload{FileName: "report.pdf"})
	require.Error(t, log.Send(context.Background(), "take one"))

	backend.mu.Lock()
	backend.sendErr = nil
	backend.mu.Unlock()
	require.NoError(t, log.Send(context.Background(), "take two"))

	backend.mu.Lock()
	retry := backend.sendCalls[1]
	backend.mu.Unlock()
	require.Len(t, retry.req.Attachments, 1, "staged attachment survives a failed send")
	assert.Equal(t, "report.pdf", retry.req.Attachments[0].FileName)
}

func TestMessageLogSendDoesNotAppendEcho(t *testing.T) {
	backend := newFakeBackend()
	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	require.NoError(t, log.Send(context.Background(), "hello"))
	assert.Empty(t, log.Messages(), "the message becomes visible only via the live channel echo")
}

func TestMessageLogRemoveIsOptimisticWithRollback(t *testing.T) {
	backend := newFakeBackend()
	backend.history["1"] = []api.Message{
		msg("m1", "1", "c1", "one", time.Now()),
		msg("m2", "1", "op", "two", time.Now()),
		msg("m3", "1", "c1", "three", time.Now()),
	}

	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	backend.mu.Lock()
	backend.deleteErr = errors.New("boom")
	backend.mu.Unlock()

	require.Error(t, log.Remove(context.Background(), "m2"))
	got := log.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[1].ID, "failed delete restores the message at its position")

	backend.mu.Lock()
	backend.deleteErr = nil
	backend.mu.Unlock()

	require.NoError(t, log.Remove(context.Background(), "m2"))
	got = log.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[1].ID)
}

func TestMessageLogRemoveUnknownMessageIsNoop(t *testing.T) {
	backend := newFakeBackend()
	log := NewMessageLog(backend, nil)
	defer log.Close()
	require.NoError(t, log.Open(context.Background(), "1"))

	require.NoError(t, log.Remove(context.Background(), "ghost"))
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.deleteCalls)
}
