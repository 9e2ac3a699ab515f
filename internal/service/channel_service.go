package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tessner/clack/internal/domain"
	"github.com/tessner/clack/internal/repository"
	"github.com/tessner/clack/pkg/ids"
)

var (
	ErrChannelNotFound  = errors.New("channel not found")
	ErrChannelArchived  = errors.New("channel is archived")
	ErrNotChannelMember = errors.New("user is not a member of this channel")
	ErrNotChannelAdmin  = errors.New("only a channel owner or admin can perform this action")
	ErrAlreadyMember    = errors.New("user is already a member of this channel")
	ErrDirectWithSelf   = errors.New("cannot open a direct channel with yourself")
)

type ChannelService struct {
	channelRepo repository.ChannelRepository
}

func NewChannelService(channelRepo repository.ChannelRepository) *ChannelService {
	return &ChannelService{channelRepo: channelRepo}
}

type CreateChannelInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	OrgID       int64  `json:"org_id"`
}

type UpdateChannelInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (s *ChannelService) Create(ctx context.Context, userID int64, input CreateChannelInput) (*domain.Channel, error) {
	chType := input.Type
	if chType == "" {
		chType = domain.ChannelTypePublic
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	ch := &domain.Channel{
		ID:          ids.Next(),
		OrgID:       input.OrgID,
		Name:        strings.TrimSpace(input.Name),
		Description: desc,
		Type:        chType,
		CreatedBy:   userID,
		CreatedAt:   time.Now(),
	}

	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("creating channel: %w", err)
	}

	// Creator joins as owner.
	cm := &domain.ChannelMember{
		ChannelID: ch.ID,
		UserID:    userID,
		Role:      domain.RoleOwner,
		JoinedAt:  time.Now(),
	}
	if err := s.channelRepo.AddMember(ctx, cm); err != nil {
		return nil, fmt.Errorf("adding creator as member: %w", err)
	}

	return ch, nil
}

func (s *ChannelService) GetByID(ctx context.Context, userID, channelID int64) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if cm == nil {
		return nil, ErrNotChannelMember
	}

	return ch, nil
}

// ListForUser returns the user's channels, each with the unread count
// computed from that user's read cursor.
func (s *ChannelService) ListForUser(ctx context.Context, userID int64) ([]domain.ChannelSummary, error) {
	channels, err := s.channelRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		unread, err := s.channelRepo.UnreadCount(ctx, ch.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("counting unread for channel %d: %w", ch.ID, err)
		}
		summaries = append(summaries, domain.ChannelSummary{Channel: ch, UnreadCount: unread})
	}
	return summaries, nil
}

func (s *ChannelService) Update(ctx context.Context, userID, channelID int64, input UpdateChannelInput) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if cm == nil || (cm.Role != domain.RoleOwner && cm.Role != domain.RoleAdmin) {
		return nil, ErrNotChannelAdmin
	}

	if input.Name != nil {
		ch.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		ch.Description = input.Description
	}

	if err := s.channelRepo.Update(ctx, ch); err != nil {
		return nil, fmt.Errorf("updating channel: %w", err)
	}

	return ch, nil
}

// Archive soft-flags the channel; channels are never hard-deleted.
func (s *ChannelService) Archive(ctx context.Context, userID, channelID int64) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}

	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if cm == nil || (cm.Role != domain.RoleOwner && ch.CreatedBy != userID) {
		return ErrNotChannelAdmin
	}

	return s.channelRepo.Archive(ctx, channelID)
}

func (s *ChannelService) AddMember(ctx context.Context, requesterID, channelID, userID int64) error {
	ch, err := s.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrChannelNotFound
	}
	if ch.IsArchived {
		return ErrChannelArchived
	}

	// Public channels are open to self-join; private ones require an
	// owner/admin to add.
	if ch.Type != domain.ChannelTypePublic || requesterID != userID {
		cm, err := s.channelRepo.GetMember(ctx, channelID, requesterID)
		if err != nil {
			return err
		}
		if cm == nil || (cm.Role != domain.RoleOwner && cm.Role != domain.RoleAdmin) {
			return ErrNotChannelAdmin
		}
	}

	existing, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyMember
	}

	member := &domain.ChannelMember{
		ChannelID: channelID,
		UserID:    userID,
		Role:      domain.RoleMember,
		JoinedAt:  time.Now(),
	}
	return s.channelRepo.AddMember(ctx, member)
}

func (s *ChannelService) RemoveMember(ctx context.Context, requesterID, channelID, userID int64) error {
	cm, err := s.channelRepo.GetMember(ctx, channelID, requesterID)
	if err != nil {
		return err
	}
	if cm == nil || (cm.Role != domain.RoleOwner && cm.Role != domain.RoleAdmin && requesterID != userID) {
		return ErrNotChannelAdmin
	}

	return s.channelRepo.RemoveMember(ctx, channelID, userID)
}

func (s *ChannelService) ListMembers(ctx context.Context, userID, channelID int64) ([]domain.ChannelMember, error) {
	cm, err := s.channelRepo.GetMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if cm == nil {
		return nil, ErrNotChannelMember
	}

	return s.channelRepo.ListMembers(ctx, channelID)
}

// GetOrCreateDirect returns the direct channel for the user pair, creating
// it lazily on first request. Repeated calls, in either argument order,
// return the same channel.
func (s *ChannelService) GetOrCreateDirect(ctx context.Context, userID, otherID, orgID int64) (*domain.Channel, error) {
	if userID == otherID {
		return nil, ErrDirectWithSelf
	}

	existing, err := s.channelRepo.GetDirect(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	ch := &domain.Channel{
		ID:        ids.Next(),
		OrgID:     orgID,
		Name:      fmt.Sprintf("dm-%d-%d", min(userID, otherID), max(userID, otherID)),
		Type:      domain.ChannelTypeDirect,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}

	if err := s.channelRepo.CreateDirect(ctx, ch, userID, otherID); err != nil {
		// Lost a creation race on the pair's unique index: the winner's
		// channel is the one to return.
		winner, lookupErr := s.channelRepo.GetDirect(ctx, userID, otherID)
		if lookupErr == nil && winner != nil {
			return winner, nil
		}
		return nil, fmt.Errorf("creating direct channel: %w", err)
	}

	return ch, nil
}
