package web

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFiltersByBoard(t *testing.T) {
	b := newBroker()
	all := b.subscribe("")
	one := b.subscribe("b1")

	assert.Equal(t, 2, b.publish("card-moved", "b1"))
	assert.Equal(t, 1, b.publish("card-moved", "b2"))
	assert.Equal(t, 2, b.publish("labels-changed", ""))

	assert.Len(t, all.ch, 3)
	require.Len(t, one.ch, 2)
	first := <-one.ch
	assert.Equal(t, "b1", first.BoardID)
	assert.Equal(t, uint64(1), first.ID)
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := newBroker()
	sub := b.subscribe("")

	for i := 0; i < cap(sub.ch); i++ {
		require.Equal(t, 1, b.publish("card-updated", "b1"))
	}
	assert.Zero(t, b.publish("card-updated", "b1"))
}

func TestBrokerClose(t *testing.T) {
	b := newBroker()
	sub := b.subscribe("")

	b.close()
	_, ok := <-sub.ch
	assert.False(t, ok)
	assert.Zero(t, b.len())

	// Unsubscribing after close must not close the channel twice.
	b.unsubscribe(sub)
	b.close()
	assert.Nil(t, b.subscribe(""))
}

func TestSSEStream(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", e.ts.URL+"/api/events?boardId=b1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		require.True(t, lines.Scan())
		return lines.Text()
	}

	assert.Equal(t, "event: connected", next())
	next() // data
	next() // blank

	e.srv.Broadcast("card-moved", "b2")
	e.srv.Broadcast("card-moved", "b1")

	assert.Equal(t, "id: 2", next())
	assert.Equal(t, "event: card-moved", next())
	assert.True(t, strings.HasPrefix(next(), `data: {"id":2,"type":"card-moved","boardId":"b1"}`))

	cancel()
	assert.Eventually(t, func() bool { return e.srv.events.len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSSEStreamOutlivesWriteTimeout(t *testing.T) {
	e := newTestEnvWithTimeout(t, 300*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", e.ts.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	for i := 0; i < 3; i++ {
		require.True(t, lines.Scan())
	}

	time.Sleep(600 * time.Millisecond)
	e.srv.Broadcast("card-moved", "b1")

	require.True(t, lines.Scan(), "stream ended: %v", lines.Err())
	assert.Equal(t, "id: 1", lines.Text())
	require.True(t, lines.Scan())
	assert.Equal(t, "event: card-moved", lines.Text())
}
