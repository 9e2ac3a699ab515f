package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tessner/clack/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `m.id, m.channel_id, m.sender_id, m.content, m.type, m.parent_id,
	m.thread_reply_count, m.is_edited, m.deleted_at, m.created_at, m.updated_at`

// Create writes the message row and, in the same transaction, the mention
// rows, the parent's thread reply count, and the channel's last_message_at.
// The caller must not broadcast unless this returns nil.
func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, channel_id, sender_id, content, type, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.Type, msg.ParentID, msg.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, uid := range msg.Mentions {
		_, err = tx.Exec(ctx, `
			INSERT INTO message_mentions (message_id, mentioned_user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, msg.ID, uid)
		if err != nil {
			return err
		}
	}

	if msg.ParentID != nil {
		_, err = tx.Exec(ctx, `UPDATE messages SET thread_reply_count = thread_reply_count + 1 WHERE id = $1`, *msg.ParentID)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE channels SET last_message_at = $1 WHERE id = $2`, msg.CreatedAt, msg.ChannelID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	var msg domain.Message
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.Type, &msg.ParentID,
		&msg.ThreadReplyCount, &msg.IsEdited, &msg.DeletedAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.IsDeleted = msg.DeletedAt != nil
	msg.Mentions, err = r.listMentions(ctx, msg.ID)
	return &msg, err
}

// ListByChannel pages by message id: `before` walks history backwards,
// `after` is the reconnect catch-up direction. Deleted messages are
// excluded from replay.
func (r *MessageRepo) ListByChannel(ctx context.Context, channelID int64, before, after int64, limit int) ([]domain.Message, error) {
	var (
		query string
		args  []any
	)

	switch {
	case after > 0:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.channel_id = $1 AND m.deleted_at IS NULL AND m.id > $2
			ORDER BY m.id ASC LIMIT $3`
		args = []any{channelID, after, limit}
	case before > 0:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.channel_id = $1 AND m.deleted_at IS NULL AND m.id < $2
			ORDER BY m.id DESC LIMIT $3`
		args = []any{channelID, before, limit}
	default:
		query = `SELECT ` + messageColumns + ` FROM messages m
			WHERE m.channel_id = $1 AND m.deleted_at IS NULL
			ORDER BY m.id DESC LIMIT $2`
		args = []any{channelID, limit}
	}

	messages, err := r.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// DESC pages come back newest-first; callers want ascending id order.
	if after == 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

func (r *MessageRepo) ListThread(ctx context.Context, parentID int64, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m
		WHERE m.parent_id = $1 AND m.deleted_at IS NULL
		ORDER BY m.id ASC LIMIT $2`
	return r.queryMessages(ctx, query, parentID, limit)
}

func (r *MessageRepo) Search(ctx context.Context, channelID int64, queryText string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m
		WHERE m.channel_id = $1 AND m.deleted_at IS NULL AND m.content ILIKE '%' || $2 || '%'
		ORDER BY m.id DESC LIMIT $3`
	return r.queryMessages(ctx, query, channelID, queryText, limit)
}

func (r *MessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	query := `UPDATE messages SET content = $1, is_edited = TRUE, updated_at = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, msg.Content, msg.UpdatedAt, msg.ID)
	return err
}

// SoftDelete clears the live content but keeps the row so existing thread
// replies still resolve their parent.
func (r *MessageRepo) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE messages SET content = NULL, deleted_at = $1, updated_at = $1 WHERE id = $2`, at, id)
	return err
}

func (r *MessageRepo) AddReaction(ctx context.Context, reaction *domain.Reaction) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepo) ListReactions(ctx context.Context, messageID int64) ([]domain.Reaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id = $1 ORDER BY created_at`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []domain.Reaction
	for rows.Next() {
		var re domain.Reaction
		if err := rows.Scan(&re.MessageID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}
	return reactions, rows.Err()
}

func (r *MessageRepo) AddAttachment(ctx context.Context, a *domain.Attachment) error {
	query := `INSERT INTO message_attachments (id, message_id, file_url, file_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.MessageID, a.FileURL, a.FileType, a.FileSize, a.CreatedAt)
	return err
}

func (r *MessageRepo) ListAttachments(ctx context.Context, messageID int64) ([]domain.Attachment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, message_id, file_url, file_type, file_size, created_at FROM message_attachments WHERE message_id = $1 ORDER BY id`,
		messageID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.FileURL, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (r *MessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Content, &msg.Type, &msg.ParentID,
			&msg.ThreadReplyCount, &msg.IsEdited, &msg.DeletedAt, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		msg.IsDeleted = msg.DeletedAt != nil
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) listMentions(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT mentioned_user_id FROM message_mentions WHERE message_id = $1`, messageID)
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
