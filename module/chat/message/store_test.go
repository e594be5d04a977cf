package message

import (
	"context"
	"os"
	"testing"
	"time"

	"DMChat/data/database/mgo/mongoutil"
	chatmodel "DMChat/module/chat/model"
	"DMChat/tools/errs"
	"DMChat/tools/ids"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]storeFactory {
	out := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemStore(ids.NewGenerator(1)) },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(context.Background(), t.TempDir(), ids.NewGenerator(1))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			return s
		},
	}
	if dsn := os.Getenv("DMCHAT_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := OpenPgStore(context.Background(), dsn, 4, ids.NewGenerator(2))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			return s
		}
	}
	if uri := os.Getenv("DMCHAT_TEST_MONGO_URI"); uri != "" {
		out["mongo"] = func(t *testing.T) Store {
			ctx := context.Background()
			cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: uri, Database: "dmchat_test"})
			require.NoError(t, err)
			t.Cleanup(func() { _ = cli.Close(ctx) })
			s, err := NewMongoStore(ctx, cli.GetDB(), ids.NewGenerator(3))
			require.NoError(t, err)
			return s
		}
	}
	return out
}

// users returns ids unique to the test so shared databases do not interfere.
func users() (string, string, string) {
	return uuid.NewString(), uuid.NewString(), uuid.NewString()
}

func send(t *testing.T, s Store, from, to, text string) *chatmodel.Message {
	t.Helper()
	m := &chatmodel.Message{SenderID: from, ReceiverID: to, Text: text}
	require.NoError(t, s.Insert(context.Background(), m))
	return m
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("InsertRejectsEmptyBody", func(t *testing.T) {
				s := open(t)
				a, b, _ := users()
				err := s.Insert(context.Background(), &chatmodel.Message{SenderID: a, ReceiverID: b, Text: "  "})
				require.Error(t, err)
				assert.True(t, errs.ErrArgs.Is(err))
			})

			t.Run("InsertAssignsIdentity", func(t *testing.T) {
				s := open(t)
				a, b, _ := users()
				m := &chatmodel.Message{SenderID: a, ReceiverID: b, Image: "/api/assets/x", Seen: true}
				require.NoError(t, s.Insert(context.Background(), m))
				assert.NotEmpty(t, m.ID)
				assert.NotZero(t, m.Seq)
				assert.False(t, m.Seen)
				assert.False(t, m.CreatedAt.IsZero())

				got, err := s.Get(context.Background(), m.ID)
				require.NoError(t, err)
				assert.Equal(t, m.Image, got.Image)
				assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
			})

			t.Run("ConversationOrderedBothDirections", func(t *testing.T) {
				s := open(t)
				a, b, c := users()
				m1 := send(t, s, a, b, "1")
				m2 := send(t, s, b, a, "2")
				send(t, s, a, c, "other")
				m3 := send(t, s, a, b, "3")

				got, err := s.Conversation(context.Background(), b, a)
				require.NoError(t, err)
				require.Len(t, got, 3)
				assert.Equal(t, []string{m1.ID, m2.ID, m3.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
				for i := 1; i < len(got); i++ {
					assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt))
				}

				again, err := s.Conversation(context.Background(), a, b)
				require.NoError(t, err)
				assert.Equal(t, got, again)
			})

			t.Run("UnseenAndBulkMark", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				a, b, _ := users()
				for i := 0; i < 3; i++ {
					send(t, s, a, b, "hi")
				}
				send(t, s, b, a, "reply")

				n, err := s.CountUnseen(ctx, a, b)
				require.NoError(t, err)
				assert.EqualValues(t, 3, n)

				marked, err := s.MarkConversationSeen(ctx, b, a)
				require.NoError(t, err)
				assert.EqualValues(t, 3, marked)

				n, err = s.CountUnseen(ctx, a, b)
				require.NoError(t, err)
				assert.Zero(t, n)

				// the other direction is untouched
				n, err = s.CountUnseen(ctx, b, a)
				require.NoError(t, err)
				assert.EqualValues(t, 1, n)

				marked, err = s.MarkConversationSeen(ctx, b, a)
				require.NoError(t, err)
				assert.Zero(t, marked)
			})

			t.Run("MarkSeenIdempotent", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				a, b, _ := users()
				m := send(t, s, a, b, "x")
				for i := 0; i < 2; i++ {
					got, err := s.MarkSeen(ctx, m.ID)
					require.NoError(t, err)
					assert.True(t, got.Seen)
				}
				_, err := s.MarkSeen(ctx, "404")
				assert.True(t, errs.ErrRecordNotFound.Is(err))
			})

			t.Run("LastContact", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				a, b, c := users()
				_, ok, err := s.LastContact(ctx, a, b)
				require.NoError(t, err)
				assert.False(t, ok)

				send(t, s, a, b, "1")
				last := send(t, s, b, a, "2")
				send(t, s, a, c, "3")

				ts, ok, err := s.LastContact(ctx, a, b)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.True(t, last.CreatedAt.Equal(ts))
			})
		})
	}
}

func TestStamperMonotonic(t *testing.T) {
	st := NewStamper(ids.NewGenerator(1))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	st.now = func() time.Time { return clock }

	var m1, m2, m3 chatmodel.Message
	st.Stamp(&m1)
	clock = base.Add(-time.Second)
	st.Stamp(&m2)
	clock = base.Add(1500 * time.Microsecond)
	st.Stamp(&m3)

	assert.True(t, m2.CreatedAt.Equal(m1.CreatedAt))
	assert.Less(t, m1.Seq, m2.Seq)
	assert.Equal(t, base.Add(time.Millisecond), m3.CreatedAt)
	assert.True(t, m2.Before(&m3))
}

func TestSQLiteReopenKeepsFloor(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := OpenSQLiteStore(ctx, dir, ids.NewGenerator(1))
	require.NoError(t, err)
	first := send(t, s, "a", "b", "persisted")
	require.NoError(t, s.Close(ctx))

	s, err = OpenSQLiteStore(ctx, dir, ids.NewGenerator(2))
	require.NoError(t, err)
	defer s.Close(ctx)
	got, err := s.Conversation(ctx, "a", "b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	second := send(t, s, "b", "a", "after reopen")
	assert.False(t, second.CreatedAt.Before(first.CreatedAt))
}
