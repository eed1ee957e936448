package conversation

import (
	"sort"

	"servicemarket/internal/domain"
)

// timeline is the ordered, deduplicated message list of one conversation.
// It is not safe for concurrent use; Handle guards it.
type timeline struct {
	msgs []*domain.Message
	ids  map[int64]struct{}
}

func newTimeline() *timeline {
	return &timeline{ids: make(map[int64]struct{})}
}

// merge folds a server message in. It reports true only when the message is new:
// neither an id already present nor the acknowledgement of a provisional entry.
func (t *timeline) merge(m *domain.Message) bool {
	if m.ID > 0 {
		if _, ok := t.ids[m.ID]; ok {
			return false
		}
	}

	in := *m
	in.Pending = false

	if in.ClientID != "" {
		if i := t.provisional(in.ClientID); i >= 0 {
			if in.Channel == "" {
				in.Channel = t.msgs[i].Channel
			}
			t.msgs[i] = &in
			t.track(&in)
			t.sort()
			return false
		}
	}

	t.msgs = append(t.msgs, &in)
	t.track(&in)
	t.sort()
	return true
}

// addProvisional records a locally written message, or updates the pending entry with the same ClientID.
func (t *timeline) addProvisional(m *domain.Message) {
	in := *m
	in.Pending = true
	if i := t.provisional(in.ClientID); i >= 0 {
		t.msgs[i] = &in
		return
	}
	t.msgs = append(t.msgs, &in)
	t.sort()
}

func (t *timeline) dropProvisional(clientID string) {
	i := t.provisional(clientID)
	if i < 0 {
		return
	}
	t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
}

func (t *timeline) provisional(clientID string) int {
	for i, m := range t.msgs {
		if m.ID == 0 && m.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (t *timeline) track(m *domain.Message) {
	if m.ID > 0 {
		t.ids[m.ID] = struct{}{}
	}
}

func (t *timeline) sort() {
	sort.SliceStable(t.msgs, func(i, j int) bool {
		return t.msgs[i].Before(t.msgs[j])
	})
}

func (t *timeline) snapshot() []domain.Message {
	out := make([]domain.Message, len(t.msgs))
	for i, m := range t.msgs {
		out[i] = *m
	}
	return out
}

func (t *timeline) len() int {
	return len(t.msgs)
}
