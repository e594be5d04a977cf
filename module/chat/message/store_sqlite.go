package message

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/errs"
	"DMChat/tools/ids"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	text        TEXT NOT NULL DEFAULT '',
	image       TEXT NOT NULL DEFAULT '',
	seen        INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
)`

const sqliteColumns = `id, seq, sender_id, receiver_id, text, image, seen, created_at`

// SQLiteStore is a single-file store; created_at is kept as unix millis.
type SQLiteStore struct {
	stamp *Stamper
	db    *sql.DB
}

// OpenSQLiteStore opens (or creates) dir/messages.db.
func OpenSQLiteStore(ctx context.Context, dir string, gen *ids.Generator) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.ErrStore.WrapErr(err, "create sqlite dir", "dir", dir)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "messages.db"))
	if err != nil {
		return nil, errs.ErrStore.WrapErr(err, "open sqlite", "dir", dir)
	}
	// one writer connection; pragmas below are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS messages_unseen_idx ON messages (receiver_id, seen)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errs.ErrStore.WrapErr(err, "init sqlite", "stmt", stmt)
		}
	}

	s := &SQLiteStore{stamp: NewStamper(gen), db: db}
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&last); err != nil {
		db.Close()
		return nil, errs.ErrStore.WrapErr(err, "load newest message")
	}
	if last.Valid {
		s.stamp.Observe(time.UnixMilli(last.Int64).UTC())
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*chatmodel.Message, error) {
	var (
		m    chatmodel.Message
		seen int
		ms   int64
	)
	if err := row.Scan(&m.ID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &seen, &ms); err != nil {
		return nil, err
	}
	m.Seen = seen != 0
	m.CreatedAt = time.UnixMilli(ms).UTC()
	return &m, nil
}

func sqliteErr(err error, msg string, kv ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrRecordNotFound.WrapMsg(msg, kv...)
	}
	return errs.ErrStore.WrapErr(err, msg, kv...)
}

func (s *SQLiteStore) Insert(ctx context.Context, m *chatmodel.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	s.stamp.Stamp(m)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (`+sqliteColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.Seq, m.SenderID, m.ReceiverID, m.Text, m.Image, m.CreatedAt.UnixMilli())
	if err != nil {
		return sqliteErr(err, "insert message", "sender", m.SenderID, "receiver", m.ReceiverID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*chatmodel.Message, error) {
	m, err := scanSQLiteMessage(s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM messages WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteErr(err, "message not found", "id", id)
	}
	return m, nil
}

func (s *SQLiteStore) Conversation(ctx context.Context, a, b string) ([]*chatmodel.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, seq ASC`, a, b, b, a)
	if err != nil {
		return nil, sqliteErr(err, "find conversation", "a", a, "b", b)
	}
	defer rows.Close()
	out := make([]*chatmodel.Message, 0)
	for rows.Next() {
		m, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, sqliteErr(err, "scan conversation", "a", a, "b", b)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, "read conversation", "a", a, "b", b)
	}
	return out, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, id string) (*chatmodel.Message, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE id = ?`, id); err != nil {
		return nil, sqliteErr(err, "mark seen", "id", id)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) MarkConversationSeen(ctx context.Context, reader, peer string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET seen = 1 WHERE sender_id = ? AND receiver_id = ? AND seen = 0`, peer, reader)
	if err != nil {
		return 0, sqliteErr(err, "mark conversation seen", "reader", reader, "peer", peer)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqliteErr(err, "mark conversation seen", "reader", reader, "peer", peer)
	}
	return n, nil
}

func (s *SQLiteStore) CountUnseen(ctx context.Context, from, to string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE sender_id = ? AND receiver_id = ? AND seen = 0`, from, to).Scan(&n)
	if err != nil {
		return 0, sqliteErr(err, "count unseen", "from", from, "to", to)
	}
	return n, nil
}

func (s *SQLiteStore) LastContact(ctx context.Context, a, b string) (time.Time, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)`, a, b, b, a).Scan(&last)
	if err != nil {
		return time.Time{}, false, sqliteErr(err, "last contact", "a", a, "b", b)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(last.Int64).UTC(), true, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
