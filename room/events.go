package room

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
)

type (
	// Event is one mutation relayed between room members. The relay never
	// inspects payload semantics; the variants exist so dispatch is
	// type-checked instead of keyed on loose string tags.
	Event interface {
		// Kind is the inbound wire event name.
		Kind() string
		// DeliverAs is the event name used when forwarding to other members.
		DeliverAs() string
		// Room is the target room id carried in the payload.
		Room() string
	}

	// TextDelta carries an edit to a single named file.
	TextDelta struct {
		RoomID   string `json:"roomId"`
		Filename string `json:"filename"`
		Code     string `json:"code"`
	}

	// TreeReplace swaps the whole file tree.
	TreeReplace struct {
		RoomID string         `json:"roomId"`
		Tree   *core.FileNode `json:"fileTree"`
	}

	// TreeAndTabsReplace swaps the tree together with the open-tab state.
	TreeAndTabsReplace struct {
		RoomID    string         `json:"roomId"`
		Tree      *core.FileNode `json:"fileTree"`
		OpenTabs  []string       `json:"openTabs"`
		ActiveTab string         `json:"activeTab,omitempty"`
	}

	// ChatLine is a freeform chat message.
	ChatLine struct {
		RoomID string    `json:"roomId"`
		Sender string    `json:"sender"`
		Text   string    `json:"text"`
		SentAt time.Time `json:"sentAt"`
	}
)

func (TextDelta) Kind() string      { return KindTextDelta }
func (TextDelta) DeliverAs() string { return eventTextDeltaOut }

func (TreeReplace) Kind() string      { return KindTree }
func (TreeReplace) DeliverAs() string { return KindTree }

func (TreeAndTabsReplace) Kind() string      { return KindTreeAndTabs }
func (TreeAndTabsReplace) DeliverAs() string { return KindTreeAndTabs }

func (ChatLine) Kind() string      { return KindChat }
func (ChatLine) DeliverAs() string { return KindChat }

func (ev TextDelta) Room() string          { return ev.RoomID }
func (ev TreeReplace) Room() string        { return ev.RoomID }
func (ev TreeAndTabsReplace) Room() string { return ev.RoomID }
func (ev ChatLine) Room() string           { return ev.RoomID }

// Decode maps an inbound wire event onto its typed variant. Unknown kinds are
// rejected so a misbehaving client cannot smuggle arbitrary events through
// the relay.
func Decode(kind string, payload json.RawMessage) (Event, error) {
	switch kind {
	case KindTextDelta:
		var ev TextDelta
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ev, nil
	case KindTree:
		var ev TreeReplace
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ev, nil
	case KindTreeAndTabs:
		var ev TreeAndTabsReplace
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ev, nil
	case KindChat:
		var ev ChatLine
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown mutation event %q", kind)
	}
}
