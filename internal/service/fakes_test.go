package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tessner/clack/internal/domain"
)

// In-memory fakes implementing the repository interfaces, so pipeline
// semantics are testable without Postgres.

type memberKey struct{ channelID, userID int64 }
type pairKey struct{ lo, hi int64 }
type reactionKey struct {
	messageID, userID int64
	emoji             string
}

type fakeState struct {
	mu          sync.Mutex
	channels    map[int64]*domain.Channel
	members     map[memberKey]*domain.ChannelMember
	pairs       map[pairKey]int64
	messages    map[int64]*domain.Message
	order       []int64
	reactions   map[reactionKey]domain.Reaction
	attachments map[int64][]domain.Attachment

	// failNextCreates / failNextReactions induce transient persistence
	// failures for retry tests.
	failNextCreates   int
	failNextReactions int
}

var errTransient = errors.New("transient persistence failure")

func newFakeState() *fakeState {
	return &fakeState{
		channels:    make(map[int64]*domain.Channel),
		members:     make(map[memberKey]*domain.ChannelMember),
		pairs:       make(map[pairKey]int64),
		messages:    make(map[int64]*domain.Message),
		reactions:   make(map[reactionKey]domain.Reaction),
		attachments: make(map[int64][]domain.Attachment),
	}
}

type fakeChannelRepo struct{ st *fakeState }
type fakeMessageRepo struct{ st *fakeState }

// --- fakeChannelRepo ---

func (r *fakeChannelRepo) Create(_ context.Context, ch *domain.Channel) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cp := *ch
	r.st.channels[ch.ID] = &cp
	return nil
}

func (r *fakeChannelRepo) GetByID(_ context.Context, id int64) (*domain.Channel, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	ch, ok := r.st.channels[id]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (r *fakeChannelRepo) Update(_ context.Context, ch *domain.Channel) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if existing, ok := r.st.channels[ch.ID]; ok {
		existing.Name = ch.Name
		existing.Description = ch.Description
	}
	return nil
}

func (r *fakeChannelRepo) Archive(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if ch, ok := r.st.channels[id]; ok {
		ch.IsArchived = true
	}
	return nil
}

func (r *fakeChannelRepo) GetDirect(_ context.Context, userA, userB int64) (*domain.Channel, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	id, ok := r.st.pairs[pairKey{lo, hi}]
	if !ok {
		return nil, nil
	}
	cp := *r.st.channels[id]
	return &cp, nil
}

func (r *fakeChannelRepo) CreateDirect(_ context.Context, ch *domain.Channel, userA, userB int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	if _, exists := r.st.pairs[pairKey{lo, hi}]; exists {
		return errors.New("duplicate key value violates unique constraint \"direct_pairs_pkey\"")
	}
	cp := *ch
	r.st.channels[ch.ID] = &cp
	r.st.pairs[pairKey{lo, hi}] = ch.ID
	for _, uid := range []int64{userA, userB} {
		r.st.members[memberKey{ch.ID, uid}] = &domain.ChannelMember{
			ChannelID: ch.ID, UserID: uid, Role: domain.RoleMember, JoinedAt: ch.CreatedAt,
		}
	}
	return nil
}

func (r *fakeChannelRepo) ListByUser(_ context.Context, userID int64) ([]domain.Channel, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Channel
	for k, m := range r.st.members {
		if m.UserID != userID {
			continue
		}
		if ch, ok := r.st.channels[k.channelID]; ok && !ch.IsArchived {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeChannelRepo) ListChannelIDsByUser(_ context.Context, userID int64) ([]int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var ids []int64
	for k, m := range r.st.members {
		if m.UserID == userID {
			ids = append(ids, k.channelID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeChannelRepo) AddMember(_ context.Context, m *domain.ChannelMember) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cp := *m
	r.st.members[memberKey{m.ChannelID, m.UserID}] = &cp
	return nil
}

func (r *fakeChannelRepo) RemoveMember(_ context.Context, channelID, userID int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.members, memberKey{channelID, userID})
	return nil
}

func (r *fakeChannelRepo) GetMember(_ context.Context, channelID, userID int64) (*domain.ChannelMember, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m, ok := r.st.members[memberKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeChannelRepo) ListMembers(_ context.Context, channelID int64) ([]domain.ChannelMember, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.ChannelMember
	for k, m := range r.st.members {
		if k.channelID == channelID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeChannelRepo) MarkRead(_ context.Context, channelID, userID, lastMsgID int64, at time.Time) (*domain.ChannelMember, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	m, ok := r.st.members[memberKey{channelID, userID}]
	if !ok {
		return nil, nil
	}
	if m.LastReadAt == nil || at.After(*m.LastReadAt) {
		m.LastReadAt = &at
	}
	if lastMsgID > m.LastReadMsgID {
		m.LastReadMsgID = lastMsgID
	}
	cp := *m
	return &cp, nil
}

func (r *fakeChannelRepo) UnreadCount(_ context.Context, channelID, userID int64) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var cursor int64
	if m, ok := r.st.members[memberKey{channelID, userID}]; ok {
		cursor = m.LastReadMsgID
	}
	count := 0
	for _, msg := range r.st.messages {
		if msg.ChannelID == channelID && msg.SenderID != userID && msg.DeletedAt == nil && msg.ID > cursor {
			count++
		}
	}
	return count, nil
}

// --- fakeMessageRepo ---

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.Message) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.failNextCreates > 0 {
		r.st.failNextCreates--
		return errTransient
	}
	cp := *msg
	r.st.messages[msg.ID] = &cp
	r.st.order = append(r.st.order, msg.ID)
	if msg.ParentID != nil {
		if parent, ok := r.st.messages[*msg.ParentID]; ok {
			parent.ThreadReplyCount++
		}
	}
	if ch, ok := r.st.channels[msg.ChannelID]; ok {
		at := msg.CreatedAt
		ch.LastMessageAt = &at
	}
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	msg, ok := r.st.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	cp.IsDeleted = cp.DeletedAt != nil
	return &cp, nil
}

func (r *fakeMessageRepo) ListByChannel(_ context.Context, channelID int64, before, after int64, limit int) ([]domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var all []domain.Message
	for _, id := range r.st.order {
		msg := r.st.messages[id]
		if msg.ChannelID != channelID || msg.DeletedAt != nil {
			continue
		}
		if before > 0 && msg.ID >= before {
			continue
		}
		if after > 0 && msg.ID <= after {
			continue
		}
		all = append(all, *msg)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if len(all) > limit {
		if after > 0 {
			all = all[:limit]
		} else {
			all = all[len(all)-limit:]
		}
	}
	return all, nil
}

func (r *fakeMessageRepo) ListThread(_ context.Context, parentID int64, limit int) ([]domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Message
	for _, id := range r.st.order {
		msg := r.st.messages[id]
		if msg.ParentID != nil && *msg.ParentID == parentID && msg.DeletedAt == nil {
			out = append(out, *msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Search(_ context.Context, channelID int64, query string, limit int) ([]domain.Message, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Message
	for _, id := range r.st.order {
		msg := r.st.messages[id]
		if msg.ChannelID == channelID && msg.DeletedAt == nil && msg.Content != nil && strings.Contains(*msg.Content, query) {
			out = append(out, *msg)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Update(_ context.Context, msg *domain.Message) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if existing, ok := r.st.messages[msg.ID]; ok {
		existing.Content = msg.Content
		existing.IsEdited = true
		existing.UpdatedAt = msg.UpdatedAt
	}
	return nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, id int64, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if msg, ok := r.st.messages[id]; ok {
		msg.Content = nil
		msg.DeletedAt = &at
		msg.UpdatedAt = at
	}
	return nil
}

func (r *fakeMessageRepo) AddReaction(_ context.Context, reaction *domain.Reaction) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.failNextReactions > 0 {
		r.st.failNextReactions--
		return false, errTransient
	}
	k := reactionKey{reaction.MessageID, reaction.UserID, reaction.Emoji}
	if _, exists := r.st.reactions[k]; exists {
		return false, nil
	}
	r.st.reactions[k] = *reaction
	return true, nil
}

func (r *fakeMessageRepo) RemoveReaction(_ context.Context, messageID, userID int64, emoji string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	k := reactionKey{messageID, userID, emoji}
	if _, exists := r.st.reactions[k]; !exists {
		return false, nil
	}
	delete(r.st.reactions, k)
	return true, nil
}

func (r *fakeMessageRepo) ListReactions(_ context.Context, messageID int64) ([]domain.Reaction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []domain.Reaction
	for k, re := range r.st.reactions {
		if k.messageID == messageID {
			out = append(out, re)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeMessageRepo) AddAttachment(_ context.Context, a *domain.Attachment) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.attachments[a.MessageID] = append(r.st.attachments[a.MessageID], *a)
	return nil
}

func (r *fakeMessageRepo) ListAttachments(_ context.Context, messageID int64) ([]domain.Attachment, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return append([]domain.Attachment(nil), r.st.attachments[messageID]...), nil
}

// fakeNotifier records broadcasts in order.

type notified struct {
	kind      string
	channelID int64
	messageID int64
	userID    int64
	corr      string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notified
}

func (n *fakeNotifier) record(e notified) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) all() []notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notified(nil), n.events...)
}

func (n *fakeNotifier) NewMessage(msg *domain.Message, correlationID string) {
	n.record(notified{kind: "new", channelID: msg.ChannelID, messageID: msg.ID, userID: msg.SenderID, corr: correlationID})
}

func (n *fakeNotifier) MessageEdited(channelID, messageID int64, _ string, _ time.Time) {
	n.record(notified{kind: "edited", channelID: channelID, messageID: messageID})
}

func (n *fakeNotifier) MessageDeleted(channelID, messageID int64) {
	n.record(notified{kind: "deleted", channelID: channelID, messageID: messageID})
}

func (n *fakeNotifier) ReactionAdded(channelID int64, reaction *domain.Reaction) {
	n.record(notified{kind: "reaction-added", channelID: channelID, messageID: reaction.MessageID, userID: reaction.UserID})
}

func (n *fakeNotifier) ReactionRemoved(channelID int64, reaction *domain.Reaction) {
	n.record(notified{kind: "reaction-removed", channelID: channelID, messageID: reaction.MessageID, userID: reaction.UserID})
}

func (n *fakeNotifier) MarkedRead(channelID, userID int64, _ time.Time) {
	n.record(notified{kind: "marked-read", channelID: channelID, userID: userID})
}
