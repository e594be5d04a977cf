package message

import (
	"context"
	"errors"
	"time"

	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/errs"
	"DMChat/tools/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	seq         BIGINT NOT NULL,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	image       TEXT NOT NULL DEFAULT '',
	seen        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at, seq);
CREATE INDEX IF NOT EXISTS messages_unseen_idx ON messages (receiver_id, sender_id) WHERE NOT seen;
`

const pgColumns = `id, seq, sender_id, receiver_id, text, image, seen, created_at`

type PgStore struct {
	stamp *Stamper
	pool  *pgxpool.Pool
}

// OpenPgStore connects a pool to dsn and migrates the messages table.
func OpenPgStore(ctx context.Context, dsn string, maxConns int32, gen *ids.Generator) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("invalid postgres dsn", "err", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errs.ErrStore.WrapErr(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.ErrStore.WrapErr(err, "ping postgres")
	}
	s, err := NewPgStore(ctx, pool, gen)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPgStore uses an existing pool; Close will close it.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool, gen *ids.Generator) (*PgStore, error) {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, errs.ErrStore.WrapErr(err, "migrate messages table")
	}
	s := &PgStore{stamp: NewStamper(gen), pool: pool}
	var last *time.Time
	if err := pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&last); err != nil {
		return nil, errs.ErrStore.WrapErr(err, "load newest message")
	}
	if last != nil {
		s.stamp.Observe(last.UTC())
	}
	return s, nil
}

func scanPgMessage(row pgx.Row) (*chatmodel.Message, error) {
	var m chatmodel.Message
	if err := row.Scan(&m.ID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func pgErr(err error, msg string, kv ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrRecordNotFound.WrapMsg(msg, kv...)
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return errs.ErrDuplicateKey.WrapMsg(msg, kv...)
	}
	return errs.ErrStore.WrapErr(err, msg, kv...)
}

func (s *PgStore) Insert(ctx context.Context, m *chatmodel.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	s.stamp.Stamp(m)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (`+pgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Seq, m.SenderID, m.ReceiverID, m.Text, m.Image, m.Seen, m.CreatedAt)
	if err != nil {
		return pgErr(err, "insert message", "sender", m.SenderID, "receiver", m.ReceiverID)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id string) (*chatmodel.Message, error) {
	m, err := scanPgMessage(s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, pgErr(err, "message not found", "id", id)
	}
	return m, nil
}

func (s *PgStore) Conversation(ctx context.Context, a, b string) ([]*chatmodel.Message, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, seq ASC`, a, b)
	if err != nil {
		return nil, pgErr(err, "find conversation", "a", a, "b", b)
	}
	defer rows.Close()
	out := make([]*chatmodel.Message, 0)
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, pgErr(err, "scan conversation", "a", a, "b", b)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, pgErr(err, "read conversation", "a", a, "b", b)
	}
	return out, nil
}

func (s *PgStore) MarkSeen(ctx context.Context, id string) (*chatmodel.Message, error) {
	m, err := scanPgMessage(s.pool.QueryRow(ctx,
		`UPDATE messages SET seen = TRUE WHERE id = $1 RETURNING `+pgColumns, id))
	if err != nil {
		return nil, pgErr(err, "message not found", "id", id)
	}
	return m, nil
}

func (s *PgStore) MarkConversationSeen(ctx context.Context, reader, peer string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET seen = TRUE WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen`, peer, reader)
	if err != nil {
		return 0, pgErr(err, "mark conversation seen", "reader", reader, "peer", peer)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen`, from, to).Scan(&n)
	if err != nil {
		return 0, pgErr(err, "count unseen", "from", from, "to", to)
	}
	return n, nil
}

func (s *PgStore) LastContact(ctx context.Context, a, b string) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)`, a, b).Scan(&last)
	if err != nil {
		return time.Time{}, false, pgErr(err, "last contact", "a", a, "b", b)
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

func (s *PgStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}
