package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	id               TEXT PRIMARY KEY,
	conversation_key TEXT        NOT NULL,
	seq              BIGINT      NOT NULL,
	sender           TEXT        NOT NULL,
	body             TEXT        NOT NULL,
	kind             TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_key, seq)
)`

// Postgres persists history in a chat_messages table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPool configures pgxpool from dsn and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	start := time.Now()

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres parse dsn: %w", err)
	}
	pcfg.ConnConfig.ConnectTimeout = 5 * time.Second
	if pcfg.ConnConfig.RuntimeParams == nil {
		pcfg.ConnConfig.RuntimeParams = make(map[string]string, 1)
	}
	pcfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	log.Info().Str("module", "store.postgres").Str("host", pcfg.ConnConfig.Host).
		Int64("duration_ms", time.Since(start).Milliseconds()).Msg("connected to postgres")
	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the messages table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create chat_messages: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Append(ctx context.Context, msg domain.ChatMessage) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, conversation_key, seq, sender, body, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		msg.ID,
		string(msg.Key),
		int64(msg.Seq),
		string(msg.Sender),
		msg.Body,
		string(msg.Kind),
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, key domain.ConversationKey, limit int, cursor string) (domain.MessagePage, error) {
	if err := checkLimit(limit); err != nil {
		return domain.MessagePage{}, err
	}
	before, err := decodeCursor(cursor)
	if err != nil {
		return domain.MessagePage{}, err
	}
	bound := int64(before)

	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_key, seq, sender, body, kind, created_at
		FROM chat_messages
		WHERE conversation_key = $1 AND seq < $2
		ORDER BY seq DESC
		LIMIT $3
	`, string(key), bound, limit+1)
	if err != nil {
		return domain.MessagePage{}, fmt.Errorf("query messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ChatMessage, error) {
		var (
			m               domain.ChatMessage
			k, sender, kind string
			seq             int64
		)
		if err := row.Scan(&m.ID, &k, &seq, &sender, &m.Body, &kind, &m.CreatedAt); err != nil {
			return m, err
		}
		m.Key = domain.ConversationKey(k)
		m.Seq = uint64(seq)
		m.Sender = domain.Role(sender)
		m.Kind = domain.MessageKind(kind)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, nil
	})
	if err != nil {
		return domain.MessagePage{}, fmt.Errorf("scan messages: %w", err)
	}
	return page(key, msgs, limit), nil
}
