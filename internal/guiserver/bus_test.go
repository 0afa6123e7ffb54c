package guiserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizardpipe/wizard/internal/common/wire"
)

func TestMatchTopic(t *testing.T) {
	assert.True(t, matchTopic("*", "gui"))
	assert.True(t, matchTopic("gui", "gui"))
	assert.True(t, matchTopic("subtask.*.stdout", "subtask.abc.stdout"))
	assert.True(t, matchTopic("subtask.abc.*", "subtask.abc.progress"))
	assert.False(t, matchTopic("subtask.*.stdout", "subtask.abc.stderr"))
	assert.False(t, matchTopic("subtask.*", "subtask.abc.stdout"))
	assert.False(t, matchTopic("", "gui"))
}

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	defer bus.Shutdown()

	guiCh, unsubGUI := bus.Subscribe(TopicGUI, 4)
	defer unsubGUI()
	allCh, unsubAll := bus.Subscribe("*", 4)
	defer unsubAll()
	taskCh, unsubTask := bus.Subscribe("subtask.t1.*", 4)
	defer unsubTask()

	bus.Publish(TopicGUI, wire.Message{Type: wire.TypeRefresh})
	bus.Publish("subtask.t1.stdout", wire.Message{Type: wire.TypeSubtask, Text: "line"})

	n := <-guiCh
	assert.Equal(t, wire.TypeRefresh, n.Message.Type)

	n = <-taskCh
	assert.Equal(t, "line", n.Message.Text)

	require.Len(t, drain(allCh), 2)
	select {
	case <-guiCh:
		t.Fatal("gui subscriber must not see subtask traffic")
	default:
	}
}

func TestNotifyLandsOnGUITopic(t *testing.T) {
	bus := NewBus(100 * time.Millisecond)
	defer bus.Shutdown()

	ch, unsub := bus.Subscribe(TopicGUI, 4)
	defer unsub()

	Tooltip(bus, "saved")
	bus.Notify(wire.Message{Type: wire.TypeRefresh})
	bus.Notify("not a message") // ignored

	n := <-ch
	assert.Equal(t, wire.TypeTooltip, n.Message.Type)
	assert.Equal(t, "saved", n.Message.Text)
	n = <-ch
	assert.Equal(t, wire.TypeRefresh, n.Message.Type)
	select {
	case <-ch:
		t.Fatal("non-message payload must be dropped")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(0)
	ch, unsub := bus.Subscribe(TopicGUI, 1)
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
}

func drain(ch <-chan Notification) []Notification {
	var out []Notification
	for {
		select {
		case n := <-ch:
			out = append(out, n)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}
