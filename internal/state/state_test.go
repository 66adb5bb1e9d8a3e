package state

import (
	"testing"
	"time"

	"github.com/atomicstack/chatterm/internal/chat"
)

func postMsg(id string, at time.Time) chat.Message {
	return chat.MessageFromPost(chat.Post{ID: id, ChannelID: "c1", CreateAt: at}, nil)
}

func TestAddMessagesKeepsChronologicalOrderAndDedupes(t *testing.T) {
	st := NewChatState()
	base := time.Unix(1000, 0)
	st.AddMessages("c1", []chat.Message{postMsg("b", base.Add(2*time.Second)), postMsg("c", base.Add(3*time.Second))})
	st.AddMessages("c1", []chat.Message{postMsg("a", base.Add(time.Second)), postMsg("b", base.Add(2*time.Second))})
	ch, ok := st.Channel("c1")
	if !ok {
		t.Fatalf("expected channel c1")
	}
	msgs := ch.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if id, _ := msgs[i].ID.PostID(); id != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, id)
		}
	}
}

func TestFirstChannelBecomesCurrent(t *testing.T) {
	st := NewChatState()
	st.AddChannel("c1", "town-square")
	st.AddChannel("c2", "off-topic")
	if st.CurrentChannelID() != "c1" {
		t.Fatalf("expected c1 current, got %q", st.CurrentChannelID())
	}
	if !st.SetCurrentChannel("c2") || st.CurrentChannelID() != "c2" {
		t.Fatalf("expected switch to c2")
	}
	if st.SetCurrentChannel("missing") {
		t.Fatalf("expected unknown channel to be rejected")
	}
}

func TestInstallNewMessagesMarkerUsesLatestSeenPost(t *testing.T) {
	st := NewChatState()
	ch := st.AddChannel("c1", "town-square")
	base := time.Unix(5000, 0)
	st.AddMessages("c1", []chat.Message{postMsg("a", base), postMsg("b", base.Add(time.Minute))})
	st.PostInfo("local notice")

	if !ch.InstallNewMessagesMarker(time.Unix(9999, 0)) {
		t.Fatalf("expected marker to be installed")
	}
	if got := *ch.NewMessagesAfter; !got.Equal(base.Add(time.Minute)) {
		t.Fatalf("expected marker at newest post, got %v", got)
	}

	if ch.InstallNewMessagesMarker(time.Unix(1, 0)) {
		t.Fatalf("expected existing marker to be left alone")
	}
	if got := *ch.NewMessagesAfter; !got.Equal(base.Add(time.Minute)) {
		t.Fatalf("marker changed to %v", got)
	}
}

func TestInstallNewMessagesMarkerFallsBackWhenEmpty(t *testing.T) {
	ch := &Channel{ID: "c1"}
	fallback := time.Unix(42, 0)
	ch.InstallNewMessagesMarker(fallback)
	if ch.NewMessagesAfter == nil || !ch.NewMessagesAfter.Equal(fallback) {
		t.Fatalf("expected fallback marker, got %v", ch.NewMessagesAfter)
	}
}

func TestNoticesGoToCurrentChannel(t *testing.T) {
	st := NewChatState()
	st.AddChannel("c1", "")
	st.PostError("boom")
	ch, _ := st.CurrentChannel()
	msgs := ch.Messages()
	if len(msgs) != 1 || msgs[0].Kind != chat.KindError || !msgs[0].ID.IsLocal() {
		t.Fatalf("expected one local error notice, got %#v", msgs)
	}
	if len(st.Posts) != 0 {
		t.Fatalf("notices must not enter the post map")
	}
}

func TestProgramLogIsBounded(t *testing.T) {
	st := NewChatState()
	for i := 0; i < programLogLimit+5; i++ {
		st.RecordProgramOutput(chat.ProgramOutput{Command: "cmd", ExitCode: i})
	}
	if len(st.ProgramLog) != programLogLimit {
		t.Fatalf("expected %d entries, got %d", programLogLimit, len(st.ProgramLog))
	}
	if st.ProgramLog[0].ExitCode != 5 {
		t.Fatalf("expected oldest entries dropped, first exit code %d", st.ProgramLog[0].ExitCode)
	}
}

func TestUserCacheLookups(t *testing.T) {
	c := NewUserCache()
	c.Add(chat.User{ID: "u1", Username: "Alice"})
	if !c.Resolved(chat.ByUsername("alice")) {
		t.Fatalf("expected case-insensitive username lookup")
	}
	if !c.Resolved(chat.ByUserID("u1")) {
		t.Fatalf("expected id lookup")
	}
	if c.StatusKnown(chat.ByUsername("alice")) {
		t.Fatalf("status should be unknown before it is set")
	}
	c.SetStatus("u1", "online")
	if !c.StatusKnown(chat.ByUsername("alice")) || !c.StatusKnown(chat.ByUserID("u1")) {
		t.Fatalf("expected status known by name and id")
	}
	c.Add(chat.User{ID: "u1", Username: "alice2"})
	if c.HasUsername("alice") {
		t.Fatalf("expected renamed user to drop old username")
	}
}
