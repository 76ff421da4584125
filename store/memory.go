package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensora/chatsync/contract"
)

// Memory is a deterministic in-memory Store used by tests and local
// development. Timestamps are assigned from a monotonic sequence and
// subscriber callbacks run synchronously on the mutating goroutine.
type Memory struct {
	mu    sync.Mutex
	base  time.Time
	seq   int
	subID int
	convs map[string]*memConversation
}

type memConversation struct {
	doc        contract.Conversation
	messages   []contract.Message // ascending by timestamp
	members    map[string]contract.Member
	typing     map[string]contract.TypingStatus
	viewers    map[string]contract.Viewer
	headSubs   map[int]func(contract.Message)
	typingSubs map[int]func([]contract.TypingStatus)
}

type memCursor struct {
	id string
}

func NewMemory() *Memory {
	return &Memory{
		base:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		convs: map[string]*memConversation{},
	}
}

func (m *Memory) conv(convID string) (*memConversation, error) {
	c, ok := m.convs[convID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

func (m *Memory) Conversation(_ context.Context, convID string) (contract.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return contract.Conversation{}, err
	}
	doc := c.doc
	doc.Members = append([]string(nil), c.doc.Members...)
	doc.ReadCount = map[string]int{}
	for k, v := range c.doc.ReadCount {
		doc.ReadCount[k] = v
	}
	return doc, nil
}

func (m *Memory) CreateConversation(_ context.Context, conv contract.Conversation, members []contract.Member) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.ReadCount == nil {
		conv.ReadCount = map[string]int{}
	}
	c := &memConversation{
		doc:        conv,
		members:    map[string]contract.Member{},
		typing:     map[string]contract.TypingStatus{},
		viewers:    map[string]contract.Viewer{},
		headSubs:   map[int]func(contract.Message){},
		typingSubs: map[int]func([]contract.TypingStatus){},
	}
	m.convs[conv.ID] = c
	for _, member := range members {
		if member.AddedAt.IsZero() {
			member.AddedAt = m.tick()
		}
		c.members[member.UserID] = member
		c.doc.Members = appendUnique(c.doc.Members, member.UserID)
	}
	return conv.ID, nil
}

func (m *Memory) DeleteConversation(_ context.Context, convID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.conv(convID); err != nil {
		return err
	}
	delete(m.convs, convID)
	return nil
}

func (m *Memory) RenameConversation(_ context.Context, convID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	c.doc.Name = name
	return nil
}

func (m *Memory) MessagePage(_ context.Context, convID string, limit int, after Cursor) ([]contract.Message, Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return nil, nil, err
	}

	start := len(c.messages) - 1
	if after != nil {
		cur, ok := after.(memCursor)
		if !ok {
			return nil, nil, fmt.Errorf("foreign cursor type %T", after)
		}
		start = -1
		for i := len(c.messages) - 1; i >= 0; i-- {
			if c.messages[i].ID == cur.id {
				start = i - 1
				break
			}
		}
	}

	var page []contract.Message
	for i := start; i >= 0 && len(page) < limit; i-- {
		page = append(page, c.messages[i])
	}
	if len(page) == 0 {
		return nil, nil, nil
	}
	return page, memCursor{id: page[len(page)-1].ID}, nil
}

func (m *Memory) AppendMessage(_ context.Context, convID string, msg contract.Message) error {
	m.mu.Lock()
	c, err := m.conv(convID)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.tick()
	}
	c.messages = append(c.messages, msg)
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Timestamp.Before(c.messages[j].Timestamp)
	})
	c.doc.LastMessage = msg.Content
	c.doc.LastSenderID = msg.SenderID
	c.doc.LastUpdated = msg.Timestamp

	head := c.messages[len(c.messages)-1]
	subs := snapshotSubs(c.headSubs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(head)
	}
	return nil
}

func (m *Memory) SubscribeHead(_ context.Context, convID string, fn func(contract.Message)) (Unsubscribe, error) {
	m.mu.Lock()
	c, err := m.conv(convID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.subID++
	id := m.subID
	c.headSubs[id] = fn

	var head *contract.Message
	if len(c.messages) > 0 {
		h := c.messages[len(c.messages)-1]
		head = &h
	}
	m.mu.Unlock()

	if head != nil {
		fn(*head)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.convs[convID]; ok {
			delete(c.headSubs, id)
		}
	}, nil
}

func (m *Memory) Member(_ context.Context, convID, userID string) (contract.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return contract.Member{}, err
	}
	member, ok := c.members[userID]
	if !ok {
		return contract.Member{}, ErrMemberNotFound
	}
	return member, nil
}

func (m *Memory) PutMember(_ context.Context, convID string, member contract.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	if member.AddedAt.IsZero() {
		member.AddedAt = m.tick()
	}
	c.members[member.UserID] = member
	c.doc.Members = appendUnique(c.doc.Members, member.UserID)
	return nil
}

func (m *Memory) DeleteMember(_ context.Context, convID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	delete(c.members, userID)
	members := c.doc.Members[:0]
	for _, id := range c.doc.Members {
		if id != userID {
			members = append(members, id)
		}
	}
	c.doc.Members = members
	return nil
}

func (m *Memory) SetTyping(_ context.Context, convID string, s contract.TypingStatus) error {
	m.mu.Lock()
	c, err := m.conv(convID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.tick()
	}
	c.typing[s.UserID] = s
	statuses := typingSnapshot(c)
	subs := snapshotSubs(c.typingSubs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(statuses)
	}
	return nil
}

func (m *Memory) SubscribeTyping(_ context.Context, convID string, fn func([]contract.TypingStatus)) (Unsubscribe, error) {
	m.mu.Lock()
	c, err := m.conv(convID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.subID++
	id := m.subID
	c.typingSubs[id] = fn
	statuses := typingSnapshot(c)
	m.mu.Unlock()

	fn(statuses)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.convs[convID]; ok {
			delete(c.typingSubs, id)
		}
	}, nil
}

func (m *Memory) SetViewer(_ context.Context, convID string, v contract.Viewer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	if v.EnteredAt.IsZero() {
		v.EnteredAt = m.tick()
	}
	c.viewers[v.UserID] = v
	return nil
}

func (m *Memory) DeleteViewer(_ context.Context, convID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	delete(c.viewers, userID)
	return nil
}

func (m *Memory) ActiveViewers(_ context.Context, convID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return nil, err
	}
	var viewers []string
	for id, v := range c.viewers {
		if v.Active {
			viewers = append(viewers, id)
		}
	}
	sort.Strings(viewers)
	return viewers, nil
}

func (m *Memory) ResetReadCount(_ context.Context, convID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	if c.doc.ReadCount == nil {
		c.doc.ReadCount = map[string]int{}
	}
	c.doc.ReadCount[userID] = 0
	return nil
}

func (m *Memory) IncrementReadCounts(_ context.Context, convID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	if c.doc.ReadCount == nil {
		c.doc.ReadCount = map[string]int{}
	}
	for _, id := range userIDs {
		c.doc.ReadCount[id]++
	}
	return nil
}

func (m *Memory) RemoveReadCount(_ context.Context, convID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.conv(convID)
	if err != nil {
		return err
	}
	delete(c.doc.ReadCount, userID)
	return nil
}

// tick returns the next server timestamp. Callers hold m.mu.
func (m *Memory) tick() time.Time {
	m.seq++
	return m.base.Add(time.Duration(m.seq) * time.Millisecond)
}

func typingSnapshot(c *memConversation) []contract.TypingStatus {
	statuses := make([]contract.TypingStatus, 0, len(c.typing))
	for _, s := range c.typing {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].UserID < statuses[j].UserID
	})
	return statuses
}

func snapshotSubs[T any](subs map[int]T) []T {
	out := make([]T, 0, len(subs))
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
