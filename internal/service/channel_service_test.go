package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessner/clack/internal/domain"
	"github.com/tessner/clack/internal/repository"
)

func newChannelService() (*ChannelService, *fakeState) {
	st := newFakeState()
	return NewChannelService(&fakeChannelRepo{st: st}), st
}

func TestCreateChannelCreatorBecomesOwner(t *testing.T) {
	svc, st := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "  general  ", Type: domain.ChannelTypePublic})
	require.NoError(t, err)
	assert.Equal(t, "general", ch.Name)
	assert.NotZero(t, ch.ID)

	st.mu.Lock()
	m := st.members[memberKey{ch.ID, 1}]
	st.mu.Unlock()
	require.NotNil(t, m)
	assert.Equal(t, domain.RoleOwner, m.Role)
}

func TestCreateChannelDefaultsToPublic(t *testing.T) {
	svc, _ := newChannelService()

	ch, err := svc.Create(context.Background(), 1, CreateChannelInput{Name: "random"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTypePublic, ch.Type)
}

func TestGetByIDRequiresMembership(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "general"})
	require.NoError(t, err)

	_, err = svc.GetByID(ctx, 2, ch.ID)
	require.ErrorIs(t, err, ErrNotChannelMember)

	_, err = svc.GetByID(ctx, 1, 424242)
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestAddMemberPublicSelfJoin(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "general", Type: domain.ChannelTypePublic})
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, 2, ch.ID, 2))
	require.ErrorIs(t, svc.AddMember(ctx, 2, ch.ID, 2), ErrAlreadyMember)
}

func TestAddMemberPrivateRequiresAdmin(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "secret", Type: domain.ChannelTypePrivate})
	require.NoError(t, err)

	// Outsider cannot self-join a private channel.
	require.ErrorIs(t, svc.AddMember(ctx, 2, ch.ID, 2), ErrNotChannelAdmin)

	// Owner can add.
	require.NoError(t, svc.AddMember(ctx, 1, ch.ID, 2))

	// Plain member cannot add a third user.
	require.ErrorIs(t, svc.AddMember(ctx, 2, ch.ID, 3), ErrNotChannelAdmin)
}

func TestAddMemberArchivedChannel(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "old"})
	require.NoError(t, err)
	require.NoError(t, svc.Archive(ctx, 1, ch.ID))

	require.ErrorIs(t, svc.AddMember(ctx, 2, ch.ID, 2), ErrChannelArchived)
}

func TestRemoveMemberSelfOrAdmin(t *testing.T) {
	svc, st := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "general"})
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, 2, ch.ID, 2))
	require.NoError(t, svc.AddMember(ctx, 3, ch.ID, 3))

	// A member cannot remove another member.
	require.ErrorIs(t, svc.RemoveMember(ctx, 2, ch.ID, 3), ErrNotChannelAdmin)

	// Leaving is allowed.
	require.NoError(t, svc.RemoveMember(ctx, 3, ch.ID, 3))

	// Owner removes anyone.
	require.NoError(t, svc.RemoveMember(ctx, 1, ch.ID, 2))

	st.mu.Lock()
	_, stillMember := st.members[memberKey{ch.ID, 2}]
	st.mu.Unlock()
	assert.False(t, stillMember)
}

func TestUpdateRequiresOwnerOrAdmin(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	ch, err := svc.Create(ctx, 1, CreateChannelInput{Name: "general"})
	require.NoError(t, err)
	require.NoError(t, svc.AddMember(ctx, 2, ch.ID, 2))

	name := "renamed"
	_, err = svc.Update(ctx, 2, ch.ID, UpdateChannelInput{Name: &name})
	require.ErrorIs(t, err, ErrNotChannelAdmin)

	updated, err := svc.Update(ctx, 1, ch.ID, UpdateChannelInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
}

func TestArchiveHidesFromListing(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	keep, err := svc.Create(ctx, 1, CreateChannelInput{Name: "keep"})
	require.NoError(t, err)
	gone, err := svc.Create(ctx, 1, CreateChannelInput{Name: "gone"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Archive(ctx, 99, gone.ID), ErrNotChannelAdmin)
	require.NoError(t, svc.Archive(ctx, 1, gone.ID))

	summaries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, keep.ID, summaries[0].ID)
}

func TestGetOrCreateDirect(t *testing.T) {
	svc, _ := newChannelService()
	ctx := context.Background()

	_, err := svc.GetOrCreateDirect(ctx, 1, 1, 0)
	require.ErrorIs(t, err, ErrDirectWithSelf)

	first, err := svc.GetOrCreateDirect(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTypeDirect, first.Type)

	// Same pair, either argument order, resolves to the same channel.
	again, err := svc.GetOrCreateDirect(ctx, 1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	flipped, err := svc.GetOrCreateDirect(ctx, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, flipped.ID)
}

// racingChannelRepo reports no direct channel on the first lookup, so the
// service attempts a create that collides with an existing pair row.
type racingChannelRepo struct {
	repository.ChannelRepository
	missedLookups int
}

func (r *racingChannelRepo) GetDirect(ctx context.Context, userA, userB int64) (*domain.Channel, error) {
	if r.missedLookups > 0 {
		r.missedLookups--
		return nil, nil
	}
	return r.ChannelRepository.GetDirect(ctx, userA, userB)
}

func TestGetOrCreateDirectLosesCreationRace(t *testing.T) {
	st := newFakeState()
	inner := &fakeChannelRepo{st: st}
	racing := &racingChannelRepo{ChannelRepository: inner}
	svc := NewChannelService(racing)
	ctx := context.Background()

	winner, err := svc.GetOrCreateDirect(ctx, 1, 2, 0)
	require.NoError(t, err)

	// The next caller misses the lookup, collides on the pair row, and
	// must come back with the winner's channel.
	racing.missedLookups = 1
	got, err := svc.GetOrCreateDirect(ctx, 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestListForUserIncludesUnreadCounts(t *testing.T) {
	st := newFakeState()
	channels := NewChannelService(&fakeChannelRepo{st: st})
	messages := NewMessageService(&fakeMessageRepo{st: st}, &fakeChannelRepo{st: st})
	ctx := context.Background()

	ch, err := channels.Create(ctx, 1, CreateChannelInput{Name: "general"})
	require.NoError(t, err)
	require.NoError(t, channels.AddMember(ctx, 2, ch.ID, 2))

	for i := 0; i < 3; i++ {
		_, err := messages.Send(ctx, 1, ch.ID, SendMessageInput{Content: "x"})
		require.NoError(t, err)
	}

	summaries, err := channels.ListForUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].UnreadCount)

	summaries, err = channels.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].UnreadCount)
}
