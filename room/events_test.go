package room

import (
	"encoding/json"
	"testing"

	"github.com/Indrakargaurav/codeweave/core"
)

func TestDecodeTextDelta(t *testing.T) {
	payload := json.RawMessage(`{"roomId":"r1","filename":"main.go","code":"package main"}`)
	ev, err := Decode(KindTextDelta, payload)
	if err != nil {
		t.Fatal(err)
	}
	delta, ok := ev.(TextDelta)
	if !ok {
		t.Fatalf("decoded %T, want TextDelta", ev)
	}
	if delta.Room() != "r1" || delta.Filename != "main.go" {
		t.Errorf("unexpected fields: %+v", delta)
	}
	// Inbound and outbound event names differ for text deltas.
	if delta.Kind() == delta.DeliverAs() {
		t.Error("text delta must be re-published under a different event name")
	}
	if delta.DeliverAs() != "code-update" {
		t.Errorf("DeliverAs = %q", delta.DeliverAs())
	}
}

func TestDecodeTreeReplace(t *testing.T) {
	payload := json.RawMessage(`{"roomId":"r1","fileTree":{"name":"root","type":"folder","children":[{"name":"a.txt","type":"file","content":"hi"}]}}`)
	ev, err := Decode(KindTree, payload)
	if err != nil {
		t.Fatal(err)
	}
	tree, ok := ev.(TreeReplace)
	if !ok {
		t.Fatalf("decoded %T, want TreeReplace", ev)
	}
	if tree.Tree == nil || len(tree.Tree.Children) != 1 {
		t.Errorf("tree not decoded: %+v", tree.Tree)
	}
	if tree.Tree.Children[0].Type != core.NodeTypeFile {
		t.Errorf("child type = %q", tree.Tree.Children[0].Type)
	}
	if tree.DeliverAs() != tree.Kind() {
		t.Error("tree replace is re-published under the same event name")
	}
}

func TestDecodeTreeAndTabs(t *testing.T) {
	payload := json.RawMessage(`{"roomId":"r1","fileTree":{"name":"root","type":"folder"},"openTabs":["a.txt","b.txt"],"activeTab":"b.txt"}`)
	ev, err := Decode(KindTreeAndTabs, payload)
	if err != nil {
		t.Fatal(err)
	}
	tabs, ok := ev.(TreeAndTabsReplace)
	if !ok {
		t.Fatalf("decoded %T, want TreeAndTabsReplace", ev)
	}
	if len(tabs.OpenTabs) != 2 || tabs.ActiveTab != "b.txt" {
		t.Errorf("tab state lost: %+v", tabs)
	}
}

func TestDecodeChatLine(t *testing.T) {
	payload := json.RawMessage(`{"roomId":"r1","sender":"alice","text":"hello","sentAt":"2024-05-01T12:00:00Z"}`)
	ev, err := Decode(KindChat, payload)
	if err != nil {
		t.Fatal(err)
	}
	chat, ok := ev.(ChatLine)
	if !ok {
		t.Fatalf("decoded %T, want ChatLine", ev)
	}
	if chat.Sender != "alice" || chat.Text != "hello" {
		t.Errorf("unexpected fields: %+v", chat)
	}
}

func TestDecodeUnknownKindRejected(t *testing.T) {
	if _, err := Decode("drop-tables", json.RawMessage(`{}`)); err == nil {
		t.Error("unknown event kind must be rejected")
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := Decode(KindTextDelta, json.RawMessage(`{not json`)); err == nil {
		t.Error("malformed payload must fail decoding")
	}
}
