package livechat

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shopfront/internal/datamodels/chat"
)

func msg(id, sender, content string) chat.Message {
	return chat.Message{ID: id, SenderID: sender, SenderName: sender, Content: content}
}

func ids(list []chat.Message) []string {
	out := make([]string, 0, len(list))
	for _, m := range list {
		out = append(out, m.ID)
	}
	return out
}

func TestReceiveKeepsEachIDOnceInArrivalOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		c := NewConversation(0)
		var firstSeen []string
		seen := map[string]bool{}
		for i := 0; i < 40; i++ {
			id := fmt.Sprintf("m%d", r.Intn(15))
			// 内容各不相同，排除对账的干扰
			c.Receive(msg(id, "S", fmt.Sprintf("%d-%d", round, i)))
			if !seen[id] {
				seen[id] = true
				firstSeen = append(firstSeen, id)
			}
		}
		assert.Equal(t, firstSeen, ids(c.Messages()))
	}
}

func TestHistoryThenDuplicatePush(t *testing.T) {
	c := NewConversation(0)
	c.Replace([]chat.Message{msg("m1", "C1", "hi")})

	assert.False(t, c.Receive(msg("m1", "C1", "hi")))
	require.Equal(t, 1, c.Len())
	assert.Equal(t, "m1", c.Messages()[0].ID)
}

func TestReplaceDropsDuplicateHistoryEntries(t *testing.T) {
	c := NewConversation(0)
	c.AppendLocal(msg("local-1", "C1", "pending"))

	c.Replace([]chat.Message{msg("m1", "C1", "a"), msg("m2", "S", "b"), msg("m1", "C1", "again")})

	assert.Equal(t, []string{"m1", "m2"}, ids(c.Messages()))
	assert.Equal(t, "a", c.Messages()[0].Content)
	assert.Zero(t, c.Pending())
}

func TestEchoReplacesOptimisticCopy(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewConversation(0)
	c.Receive(msg("m1", "S", "how can I help?"))

	local := msg("local-abc", "C1", "Hello")
	local.CreatedAt = t0
	c.AppendLocal(local)
	require.Equal(t, 1, c.Pending())

	echo := msg("m2", "C1", "Hello")
	echo.CreatedAt = t0.Add(3 * time.Second)
	assert.True(t, c.Receive(echo))

	assert.Equal(t, []string{"m1", "m2"}, ids(c.Messages()))
	assert.Zero(t, c.Pending())

	// 重复回显仍被去重
	assert.False(t, c.Receive(echo))
	assert.Equal(t, 2, c.Len())
}

func TestEchoOutsideWindowOrDifferentContentAppends(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c := NewConversation(time.Minute)

	local := msg("local-1", "C1", "Hello")
	local.CreatedAt = t0
	c.AppendLocal(local)

	late := msg("m2", "C1", "Hello")
	late.CreatedAt = t0.Add(5 * time.Minute)
	c.Receive(late)

	other := msg("m3", "C1", "Bye")
	other.CreatedAt = t0
	c.Receive(other)

	fromSupport := msg("m4", "S", "Hello")
	fromSupport.CreatedAt = t0
	c.Receive(fromSupport)

	assert.Equal(t, []string{"local-1", "m2", "m3", "m4"}, ids(c.Messages()))
	assert.Equal(t, 1, c.Pending())
}

func TestEchoMatchesEarliestPending(t *testing.T) {
	c := NewConversation(0)
	c.AppendLocal(msg("local-1", "C1", "ok"))
	c.AppendLocal(msg("local-2", "C1", "ok"))

	c.Receive(msg("m1", "C1", "ok"))
	assert.Equal(t, []string{"m1", "local-2"}, ids(c.Messages()))

	c.Receive(msg("m2", "C1", "ok"))
	assert.Equal(t, []string{"m1", "m2"}, ids(c.Messages()))
}

func TestOnChangeOrderAndReentrantReads(t *testing.T) {
	c := NewConversation(0)
	var (
		mu     sync.Mutex
		events []Event
		sizes  []int
	)
	c.OnChange(func(ev Event) {
		n := len(c.Messages())
		mu.Lock()
		events = append(events, ev)
		sizes = append(sizes, n)
		mu.Unlock()
	})

	c.Replace([]chat.Message{msg("m1", "S", "hi")})
	c.AppendLocal(msg("local-1", "C1", "yo"))
	c.Receive(msg("m2", "C1", "yo"))
	c.Receive(msg("m2", "C1", "yo"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, Reset, events[0].Kind)
	assert.Equal(t, Appended, events[1].Kind)
	assert.Equal(t, 1, events[1].Index)
	assert.Equal(t, Replaced, events[2].Kind)
	assert.Equal(t, 1, events[2].Index)
	assert.Equal(t, "m2", events[2].Message.ID)
	assert.Equal(t, []int{1, 2, 2}, sizes)
}
