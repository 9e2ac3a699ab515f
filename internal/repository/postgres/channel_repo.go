package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tessner/clack/internal/domain"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO channels (id, org_id, name, description, type, created_by, is_archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.OrgID, ch.Name, ch.Description, ch.Type, ch.CreatedBy, ch.IsArchived, ch.CreatedAt,
	)
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id int64) (*domain.Channel, error) {
	query := `SELECT id, org_id, name, description, type, created_by, is_archived, last_message_at, created_at
		FROM channels WHERE id = $1`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.OrgID, &ch.Name, &ch.Description, &ch.Type,
		&ch.CreatedBy, &ch.IsArchived, &ch.LastMessageAt, &ch.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &ch, err
}

func (r *ChannelRepo) Update(ctx context.Context, ch *domain.Channel) error {
	query := `UPDATE channels SET name = $1, description = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, ch.Name, ch.Description, ch.ID)
	return err
}

func (r *ChannelRepo) Archive(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE channels SET is_archived = TRUE WHERE id = $1`, id)
	return err
}

// GetDirect resolves the direct channel for a user pair regardless of
// argument order: direct channels are stored against the normalized
// (low,high) pair via direct_pairs.
func (r *ChannelRepo) GetDirect(ctx context.Context, userA, userB int64) (*domain.Channel, error) {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	query := `
		SELECT c.id, c.org_id, c.name, c.description, c.type, c.created_by, c.is_archived, c.last_message_at, c.created_at
		FROM channels c
		JOIN direct_pairs dp ON dp.channel_id = c.id
		WHERE dp.user_lo = $1 AND dp.user_hi = $2`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, lo, hi).Scan(
		&ch.ID, &ch.OrgID, &ch.Name, &ch.Description, &ch.Type,
		&ch.CreatedBy, &ch.IsArchived, &ch.LastMessageAt, &ch.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &ch, err
}

// CreateDirect inserts the channel, its pair row, and both memberships in
// one transaction. A concurrent creation for the same pair loses on the
// pair's unique index and surfaces as an error the service retries as a
// lookup.
func (r *ChannelRepo) CreateDirect(ctx context.Context, ch *domain.Channel, userA, userB int64) error {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO channels (id, org_id, name, description, type, created_by, is_archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ch.ID, ch.OrgID, ch.Name, ch.Description, ch.Type, ch.CreatedBy, ch.IsArchived, ch.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO direct_pairs (user_lo, user_hi, channel_id) VALUES ($1, $2, $3)`, lo, hi, ch.ID)
	if err != nil {
		return err
	}

	for _, uid := range []int64{userA, userB} {
		_, err = tx.Exec(ctx, `INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
			ch.ID, uid, domain.RoleMember, ch.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ChannelRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Channel, error) {
	query := `SELECT c.id, c.org_id, c.name, c.description, c.type, c.created_by, c.is_archived, c.last_message_at, c.created_at
		FROM channels c
		JOIN channel_members cm ON cm.channel_id = c.id
		WHERE cm.user_id = $1 AND c.is_archived = FALSE
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.OrgID, &ch.Name, &ch.Description, &ch.Type,
			&ch.CreatedBy, &ch.IsArchived, &ch.LastMessageAt, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) ListChannelIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT channel_id FROM channel_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChannelRepo) AddMember(ctx context.Context, m *domain.ChannelMember) error {
	query := `INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, m.ChannelID, m.UserID, m.Role, m.JoinedAt)
	return err
}

func (r *ChannelRepo) RemoveMember(ctx context.Context, channelID, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	return err
}

func (r *ChannelRepo) GetMember(ctx context.Context, channelID, userID int64) (*domain.ChannelMember, error) {
	query := `SELECT channel_id, user_id, role, last_read_at, COALESCE(last_read_msg_id, 0), joined_at
		FROM channel_members WHERE channel_id = $1 AND user_id = $2`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(
		&m.ChannelID, &m.UserID, &m.Role, &m.LastReadAt, &m.LastReadMsgID, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &m, err
}

func (r *ChannelRepo) ListMembers(ctx context.Context, channelID int64) ([]domain.ChannelMember, error) {
	query := `SELECT channel_id, user_id, role, last_read_at, COALESCE(last_read_msg_id, 0), joined_at
		FROM channel_members WHERE channel_id = $1 ORDER BY joined_at`

	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.ChannelMember
	for rows.Next() {
		var m domain.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.LastReadAt, &m.LastReadMsgID, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MarkRead uses GREATEST so a late-arriving lower cursor never moves read
// state backwards.
func (r *ChannelRepo) MarkRead(ctx context.Context, channelID, userID, lastMsgID int64, at time.Time) (*domain.ChannelMember, error) {
	query := `
		UPDATE channel_members
		SET last_read_at = GREATEST(COALESCE(last_read_at, 'epoch'::timestamptz), $3),
			last_read_msg_id = GREATEST(COALESCE(last_read_msg_id, 0), $4)
		WHERE channel_id = $1 AND user_id = $2
		RETURNING channel_id, user_id, role, last_read_at, COALESCE(last_read_msg_id, 0), joined_at`
	var m domain.ChannelMember
	err := r.pool.QueryRow(ctx, query, channelID, userID, at, lastMsgID).Scan(
		&m.ChannelID, &m.UserID, &m.Role, &m.LastReadAt, &m.LastReadMsgID, &m.JoinedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &m, err
}

func (r *ChannelRepo) UnreadCount(ctx context.Context, channelID, userID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.channel_id = $1
			AND m.sender_id <> $2
			AND m.deleted_at IS NULL
			AND m.id > COALESCE((SELECT last_read_msg_id FROM channel_members WHERE channel_id = $1 AND user_id = $2), 0)`
	var count int
	err := r.pool.QueryRow(ctx, query, channelID, userID).Scan(&count)
	return count, err
}
