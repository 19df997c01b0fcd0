package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/conversation"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

const uniqueViolation = "23505"

// ConversationRepository implements conversation.Repository.
type ConversationRepository struct {
	db     *DB
	logger *zap.Logger
	now    func() time.Time
}

var _ conversation.Repository = (*ConversationRepository)(nil)

// NewConversationRepository creates a repository over db.
func NewConversationRepository(db *DB, logger *zap.Logger) *ConversationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new conversation without messages.
func (r *ConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	if c == nil || c.ID == "" || c.OwnerID == "" {
		return fmt.Errorf("failed to create conversation: owner and id are required")
	}
	query := `
		INSERT INTO conversations (
			id, owner_id, title, model, mode, is_favorite, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	created := c.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	title := c.Title
	if title == "" {
		title = c.ID
	}

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.OwnerID,
		title,
		c.Model,
		string(c.Mode),
		c.Favorite,
		created,
		updated,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", conversation.ErrAlreadyExists, c.ID)
		}
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	r.logger.Debug("conversation created", zap.String("conversation_id", c.ID))
	return nil
}

// Get returns the conversation with its messages in insertion order.
func (r *ConversationRepository) Get(ctx context.Context, ownerID, id string) (*conversation.Conversation, error) {
	query := `
		SELECT id, owner_id, title, model, mode, is_favorite, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1 AND id = $2
	`

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", conversation.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	msgQuery := `
		SELECT role, content, model, usage, created_at
		FROM conversation_messages
		WHERE owner_id = $1 AND conversation_id = $2
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, msgQuery, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	defer rows.Close()

	c.Messages = []conversation.StoredMessage{}
	for rows.Next() {
		var (
			msg   conversation.StoredMessage
			role  string
			model sql.NullString
			usage sql.NullString
		)
		if err := rows.Scan(&role, &msg.Content, &model, &usage, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		msg.Role = adapter.Role(role)
		msg.Model = model.String
		if usage.Valid && usage.String != "" {
			var u pricing.UsageRecord
			if err := json.Unmarshal([]byte(usage.String), &u); err != nil {
				return nil, fmt.Errorf("failed to decode message usage: %w", err)
			}
			msg.Usage = &u
		}
		c.Messages = append(c.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation messages: %w", err)
	}
	return c, nil
}

// List returns the owner's conversations, most recently updated first.
func (r *ConversationRepository) List(ctx context.Context, ownerID string, opts conversation.ListOptions) ([]conversation.Conversation, error) {
	opts = opts.Normalized()
	query := `
		SELECT id, owner_id, title, model, mode, is_favorite, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1 AND ($2::boolean = false OR is_favorite = true)
		ORDER BY updated_at DESC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID, opts.FavoritesOnly, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []conversation.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return out, nil
}

// Count returns how many conversations the owner has.
func (r *ConversationRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversations: %w", err)
	}
	return n, nil
}

// AppendMessage adds a turn and bumps updated_at in one transaction.
func (r *ConversationRepository) AppendMessage(ctx context.Context, ownerID, id string, msg conversation.StoredMessage) error {
	var usage sql.NullString
	if msg.Usage != nil {
		b, err := json.Marshal(msg.Usage)
		if err != nil {
			return fmt.Errorf("failed to encode message usage: %w", err)
		}
		usage = sql.NullString{String: string(b), Valid: true}
	}
	now := r.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	var model sql.NullString
	if msg.Model != "" {
		model = sql.NullString{String: msg.Model, Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := touch(ctx, tx, ownerID, id, now); err != nil {
		r.rollback(tx, err)
		return err
	}

	insert := `
		INSERT INTO conversation_messages (
			owner_id, conversation_id, role, content, model, usage, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	if _, err := tx.ExecContext(ctx, insert, ownerID, id, string(msg.Role), msg.Content, model, usage, msg.CreatedAt); err != nil {
		r.rollback(tx, err)
		return fmt.Errorf("failed to append message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("message appended",
		zap.String("conversation_id", id),
		zap.String("role", string(msg.Role)))
	return nil
}

// UpdateTitle renames a conversation.
func (r *ConversationRepository) UpdateTitle(ctx context.Context, ownerID, id, title string) error {
	query := `
		UPDATE conversations
		SET title = $3, updated_at = $4
		WHERE owner_id = $1 AND id = $2
	`
	return r.execUpdate(ctx, "update conversation title", query, ownerID, id, title, r.now())
}

// SetFavorite marks or unmarks a conversation as favorite.
func (r *ConversationRepository) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	query := `
		UPDATE conversations
		SET is_favorite = $3, updated_at = $4
		WHERE owner_id = $1 AND id = $2
	`
	return r.execUpdate(ctx, "set conversation favorite", query, ownerID, id, favorite, r.now())
}

// Delete removes a conversation and its messages.
func (r *ConversationRepository) Delete(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM conversations WHERE owner_id = $1 AND id = $2`
	if err := r.execUpdate(ctx, "delete conversation", query, ownerID, id); err != nil {
		return err
	}
	r.logger.Debug("conversation deleted", zap.String("conversation_id", id))
	return nil
}

func (r *ConversationRepository) execUpdate(ctx context.Context, op, query string, ownerID, id string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{ownerID, id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return requireAffected(result, id)
}

func (r *ConversationRepository) rollback(tx *sql.Tx, cause error) {
	if err := tx.Rollback(); err != nil {
		r.logger.Error("failed to rollback transaction",
			zap.Error(err),
			zap.NamedError("original_error", cause))
	}
}

func touch(ctx context.Context, tx *sql.Tx, ownerID, id string, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $3 WHERE owner_id = $1 AND id = $2`,
		ownerID, id, now)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return requireAffected(result, id)
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", conversation.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var (
		c    conversation.Conversation
		mode string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Model, &mode, &c.Favorite, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Mode = registry.Mode(mode)
	return &c, nil
}
