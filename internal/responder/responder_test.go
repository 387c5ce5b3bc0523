package responder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kingfisher-im/kingfisher/feishu"
	"github.com/kingfisher-im/kingfisher/internal/config"
)

// Mock implementations

type sentReply struct {
	msgID string
	text  string
	image string
}

type mockSender struct {
	replies []sentReply
	err     error
}

func (m *mockSender) Reply(ctx context.Context, msgID, text string) error {
	if m.err != nil {
		return m.err
	}
	m.replies = append(m.replies, sentReply{msgID: msgID, text: text})
	return nil
}

func (m *mockSender) ReplyImage(ctx context.Context, msgID, path string) error {
	if m.err != nil {
		return m.err
	}
	m.replies = append(m.replies, sentReply{msgID: msgID, image: path})
	return nil
}

type recordedTrigger struct {
	response string
	chatID   string
	msgID    string
}

type mockTriggerLog struct {
	records []recordedTrigger
}

func (m *mockTriggerLog) Record(ctx context.Context, response, chatID, msgID string, at time.Time) error {
	m.records = append(m.records, recordedTrigger{response: response, chatID: chatID, msgID: msgID})
	return nil
}

func newTestStore(t *testing.T, raw string) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kingfisher.toml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	store, err := config.NewStore(path, zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newTestMessage(id, content string) *feishu.Message {
	return &feishu.Message{
		ChatID:     "oc_chat",
		MsgID:      id,
		Content:    content,
		SenderID:   "ou_user",
		CreateTime: time.Now(),
	}
}

// Tests

func TestHandleMessageRepliesText(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	log := &mockTriggerLog{}
	r := New(store, sender, log, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "I love rust")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sender.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sender.replies))
	}
	if sender.replies[0].text != "RUST MENTIONED" {
		t.Errorf("wrong reply text: %q", sender.replies[0].text)
	}
	if len(log.records) != 1 || log.records[0].response != "rust" {
		t.Errorf("trigger not recorded: %+v", log.records)
	}
}

func TestHandleMessageNoMatchSendsNothing(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "nothing relevant")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Errorf("expected no replies, got %d", len(sender.replies))
	}
}

func TestHandleMessageDeduplicates(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
cooldown = 0
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	msg := newTestMessage("m1", "rust rust rust")
	for range 3 {
		if err := r.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleMessage: %v", err)
		}
	}

	if len(sender.replies) != 1 {
		t.Errorf("duplicate deliveries must be dropped, got %d replies", len(sender.replies))
	}
}

func TestHandleMessageSkipsBotMessages(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	msg := newTestMessage("m1", "rust")
	msg.SenderIsBot = true
	if err := r.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Errorf("bot messages must be ignored, got %d replies", len(sender.replies))
	}
}

func TestHandleMessageChatAllowlist(t *testing.T) {
	store := newTestStore(t, `
chats = ["oc_allowed"]

[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "rust")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Errorf("message from unlisted chat must be ignored")
	}

	msg := newTestMessage("m2", "rust")
	msg.ChatID = "oc_allowed"
	if err := r.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 1 {
		t.Errorf("message from listed chat must be evaluated")
	}
}

func TestRenderRandomTextPicksFromList(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "goop"
ruleset = "r goop"
content = ["first", "second", "third"]
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())
	r.pick = func(n int) int { return 1 }

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "goop")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sender.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sender.replies))
	}
	if !slices.Contains([]string{"first", "second", "third"}, sender.replies[0].text) {
		t.Errorf("reply %q not from the choice list", sender.replies[0].text)
	}
	if sender.replies[0].text != "second" {
		t.Errorf("injected pick selects index 1, got %q", sender.replies[0].text)
	}
}

func TestRenderTextAndImage(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "tkinter"
ruleset = "r tkinter"
content = "TKINTER MENTIONED"
path = "./assets/tkinter.png"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "tkinter gui")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sender.replies) != 2 {
		t.Fatalf("expected text + image, got %d sends", len(sender.replies))
	}
	if sender.replies[0].text != "TKINTER MENTIONED" {
		t.Errorf("text part wrong: %+v", sender.replies[0])
	}
	if sender.replies[1].image != "./assets/tkinter.png" {
		t.Errorf("image part wrong: %+v", sender.replies[1])
	}
}

func TestRenderNoneSendsNothingButRecords(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "silent"
ruleset = "r silent"
`)
	sender := &mockSender{}
	log := &mockTriggerLog{}
	r := New(store, sender, log, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "silent treatment")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Errorf("none responses must not send, got %d", len(sender.replies))
	}
	if len(log.records) != 1 || log.records[0].response != "silent" {
		t.Errorf("none responses still count as triggered: %+v", log.records)
	}
}

func TestRenderFailureSurfaced(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sendErr := errors.New("platform down")
	sender := &mockSender{err: sendErr}
	log := &mockTriggerLog{}
	r := New(store, sender, log, zap.NewNop())

	err := r.HandleMessage(context.Background(), newTestMessage("m1", "rust"))
	if !errors.Is(err, sendErr) {
		t.Fatalf("render failure must propagate, got %v", err)
	}
	if len(log.records) != 0 {
		t.Errorf("failed sends must not be recorded as triggers")
	}
}

func TestHelpCommandRepliesHelpText(t *testing.T) {
	store := newTestStore(t, `
help_text = "I watch for keywords. Say /ask to talk to the model."

[[responses]]
name = "help"
ruleset = "r help"
content = "should not fire for /help"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "/help")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sender.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sender.replies))
	}
	if sender.replies[0].text != "I watch for keywords. Say /ask to talk to the model." {
		t.Errorf("wrong reply text: %q", sender.replies[0].text)
	}
}

func TestHelpCommandWithoutHelpTextIsSilent(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "/help")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Fatalf("expected no replies, got %d", len(sender.replies))
	}
}

type mockAsker struct {
	prompt string
	answer string
	err    error
}

func (m *mockAsker) Ask(ctx context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.answer, m.err
}

func TestAskCommandRepliesAnswer(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())
	asker := &mockAsker{answer: "42"}
	r.SetAsker(asker)

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "/ask what about rust?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if asker.prompt != "what about rust?" {
		t.Errorf("wrong prompt: %q", asker.prompt)
	}
	if len(sender.replies) != 1 || sender.replies[0].text != "42" {
		t.Fatalf("expected answer reply, got %+v", sender.replies)
	}
}

func TestAskCommandWithoutAskerIsSilent(t *testing.T) {
	store := newTestStore(t, `
[[responses]]
name = "rust"
ruleset = "r rust"
content = "RUST MENTIONED"
`)
	sender := &mockSender{}
	r := New(store, sender, nil, zap.NewNop())

	if err := r.HandleMessage(context.Background(), newTestMessage("m1", "/ask anyone home?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.replies) != 0 {
		t.Fatalf("expected no replies, got %d", len(sender.replies))
	}
}
