package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"rtchat/internal/app/chat"
	"rtchat/internal/app/user"
)

// Store is the Postgres-backed persistence layer. It implements chat.Store and
// the additional operations consumed by the HTTP surface. Sentinel failures
// are reported as chat.ErrNotFound / chat.ErrConflict so callers never see
// driver errors.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an initialized connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateUser registers a new user with a bcrypt-hashed password.
// A duplicate username fails with chat.ErrConflict.
func (s *Store) CreateUser(ctx context.Context, username, password string) (user.Ref, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return user.Ref{}, fmt.Errorf("failed to hash password: %w", err)
	}

	ref := user.Ref{ID: uuid.NewString(), Username: username}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		ref.ID, ref.Username, string(hash),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return user.Ref{}, chat.ErrConflict
		}
		return user.Ref{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return ref, nil
}

// VerifyCredentials checks a username/password pair and returns the user
// reference on success. Unknown usernames and wrong passwords both fail with
// chat.ErrNotFound so callers cannot distinguish them.
func (s *Store) VerifyCredentials(ctx context.Context, username, password string) (user.Ref, error) {
	var ref user.Ref
	var hash string

	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&ref.ID, &ref.Username, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Ref{}, chat.ErrNotFound
		}
		return user.Ref{}, fmt.Errorf("failed to query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return user.Ref{}, chat.ErrNotFound
	}

	return ref, nil
}

// GetUser returns the user reference for the given id.
func (s *Store) GetUser(ctx context.Context, id string) (user.Ref, error) {
	var ref user.Ref

	err := s.pool.QueryRow(ctx,
		`SELECT id, username FROM users WHERE id = $1`,
		id,
	).Scan(&ref.ID, &ref.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Ref{}, chat.ErrNotFound
		}
		return user.Ref{}, fmt.Errorf("failed to query user: %w", err)
	}

	return ref, nil
}

// ListUsers returns all registered users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]user.Ref, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username FROM users ORDER BY username`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	refs := make([]user.Ref, 0)
	for rows.Next() {
		var ref user.Ref
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// CreateChannel persists a new channel and inserts the creator as its first
// member in the same transaction.
func (s *Store) CreateChannel(ctx context.Context, name, description, creatorID string) (chat.ChannelSnapshot, error) {
	channelID := uuid.NewString()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO channels (id, name, description, creator_id) VALUES ($1, $2, $3, $4)`,
		channelID, name, description, creatorID,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return chat.ChannelSnapshot{}, chat.ErrNotFound
		}
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to insert channel: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id) VALUES ($1, $2)`,
		channelID, creatorID,
	)
	if err != nil {
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to insert creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to commit channel creation: %w", err)
	}

	return s.GetChannel(ctx, channelID)
}

// GetChannel returns the channel with its current member set.
func (s *Store) GetChannel(ctx context.Context, id string) (chat.ChannelSnapshot, error) {
	var snapshot chat.ChannelSnapshot

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, creator_id, created_at, last_message_at
		   FROM channels WHERE id = $1`,
		id,
	).Scan(&snapshot.ID, &snapshot.Name, &snapshot.Description, &snapshot.CreatorID,
		&snapshot.CreatedAt, &snapshot.LastMessageAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ChannelSnapshot{}, chat.ErrNotFound
		}
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to query channel: %w", err)
	}

	snapshot.Members, err = s.channelMembers(ctx, id)
	if err != nil {
		return chat.ChannelSnapshot{}, err
	}

	return snapshot, nil
}

// ListChannels returns every channel with its member set, most recently
// active first.
func (s *Store) ListChannels(ctx context.Context) ([]chat.ChannelSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, creator_id, created_at, last_message_at
		   FROM channels ORDER BY last_message_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	snapshots := make([]chat.ChannelSnapshot, 0)
	index := make(map[string]int)
	for rows.Next() {
		var snapshot chat.ChannelSnapshot
		if err := rows.Scan(&snapshot.ID, &snapshot.Name, &snapshot.Description,
			&snapshot.CreatorID, &snapshot.CreatedAt, &snapshot.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		snapshot.Members = make([]user.Ref, 0)
		index[snapshot.ID] = len(snapshots)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := s.pool.Query(ctx,
		`SELECT cm.channel_id, u.id, u.username
		   FROM channel_members cm
		   JOIN users u ON u.id = cm.user_id
		  ORDER BY u.username`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var channelID string
		var ref user.Ref
		if err := memberRows.Scan(&channelID, &ref.ID, &ref.Username); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		if i, ok := index[channelID]; ok {
			snapshots[i].Members = append(snapshots[i].Members, ref)
		}
	}

	return snapshots, memberRows.Err()
}

// AddMember adds the user to the channel's durable member set and returns the
// updated snapshot. Adding an existing member is a no-op that still returns
// the snapshot.
func (s *Store) AddMember(ctx context.Context, channelID, userID string) (chat.ChannelSnapshot, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id)
		      VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		channelID, userID,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return chat.ChannelSnapshot{}, chat.ErrNotFound
		}
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to insert membership: %w", err)
	}

	return s.GetChannel(ctx, channelID)
}

// RemoveMember removes the user from the channel's durable member set and
// returns the updated snapshot. Removing a non-member is a no-op.
func (s *Store) RemoveMember(ctx context.Context, channelID, userID string) (chat.ChannelSnapshot, error) {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM channel_members WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	)
	if err != nil {
		return chat.ChannelSnapshot{}, fmt.Errorf("failed to delete membership: %w", err)
	}

	return s.GetChannel(ctx, channelID)
}

// DeleteChannel removes the channel; memberships and messages go with it via
// the cascading foreign keys.
func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM channels WHERE id = $1`,
		channelID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}

	return nil
}

// AppendMessage persists a message and bumps the channel's last_message_at in
// the same transaction. The returned message carries the server-assigned id
// and timestamp.
func (s *Store) AppendMessage(ctx context.Context, channelID, senderID, content string) (chat.Message, error) {
	message := chat.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		SenderID:  senderID,
		Content:   content,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (id, channel_id, sender_id, content)
		      VALUES ($1, $2, $3, $4)
		   RETURNING created_at, (SELECT username FROM users WHERE id = $3)`,
		message.ID, channelID, senderID, content,
	).Scan(&message.Timestamp, &message.SenderName)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return chat.Message{}, chat.ErrNotFound
		}
		return chat.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE channels SET last_message_at = $2 WHERE id = $1`,
		channelID, message.Timestamp,
	)
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to bump channel activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("failed to commit message append: %w", err)
	}

	return message, nil
}

// ListMessages returns the most recent messages of a channel in chronological
// order, capped at limit.
func (s *Store) ListMessages(ctx context.Context, channelID string, limit int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.channel_id, m.sender_id, u.username, m.content, m.created_at
		   FROM (SELECT * FROM messages
		          WHERE channel_id = $1
		          ORDER BY created_at DESC, id DESC
		          LIMIT $2) m
		   JOIN users u ON u.id = m.sender_id
		  ORDER BY m.created_at ASC, m.id ASC`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// channelMembers loads the member references of one channel.
func (s *Store) channelMembers(ctx context.Context, channelID string) ([]user.Ref, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.username
		   FROM channel_members cm
		   JOIN users u ON u.id = cm.user_id
		  WHERE cm.channel_id = $1
		  ORDER BY u.username`,
		channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel members: %w", err)
	}
	defer rows.Close()

	members := make([]user.Ref, 0)
	for rows.Next() {
		var ref user.Ref
		if err := rows.Scan(&ref.ID, &ref.Username); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, ref)
	}

	return members, rows.Err()
}
