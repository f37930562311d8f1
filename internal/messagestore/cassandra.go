package messagestore

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/gocql/gocql"
	"github.com/oklog/ulid/v2"

	"github.com/somsomparty/chat-core/internal/cursor"
	"github.com/somsomparty/chat-core/internal/domain"
	"github.com/somsomparty/chat-core/pkg/log"
)

const (
	cqlCreateTable = `CREATE TABLE IF NOT EXISTS messages_by_room (
		room_id    bigint,
		send_time  bigint,
		message_id text,
		sender_id  bigint,
		body       text,
		PRIMARY KEY ((room_id), send_time, message_id)
	) WITH CLUSTERING ORDER BY (send_time DESC, message_id DESC)`

	cqlInsert = `INSERT INTO messages_by_room (room_id, send_time, message_id, sender_id, body)
				 VALUES (?, ?, ?, ?, ?)`

	cqlNewest = `SELECT room_id, send_time, message_id, sender_id, body
				 FROM messages_by_room
				 WHERE room_id = ?
				 LIMIT ?`

	cqlOlderThan = `SELECT room_id, send_time, message_id, sender_id, body
					FROM messages_by_room
					WHERE room_id = ? AND (send_time, message_id) < (?, ?)
					LIMIT ?`
)

// cassandraPageSize is the number of rows fetched per round trip; gocql
// pages transparently past it.
const cassandraPageSize = 500

// CassandraStore keeps each room in one partition clustered by
// (send_time, message_id) descending, so a page is a single slice read.
type CassandraStore struct {
	session *gocql.Session
}

func newCluster(cfg CassandraConfig) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.Consistency = parseConsistency(cfg.Consistency)
	return cluster
}

// NewCassandraStore connects to the configured keyspace.
func NewCassandraStore(cfg CassandraConfig) (*CassandraStore, error) {
	session, err := newCluster(cfg).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraStore{session: session}, nil
}

// parseConsistency defaults to LOCAL_QUORUM so a read following a
// successful write in the same datacenter observes it.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "ONE":
		return gocql.One
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	default:
		return gocql.LocalQuorum
	}
}

// MigrateCassandra creates the keyspace and the messages table.
func MigrateCassandra(ctx context.Context, cfg CassandraConfig) error {
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}

	bootstrap := newCluster(cfg)
	bootstrap.Keyspace = ""
	session, err := bootstrap.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create cassandra session: %w", err)
	}
	defer session.Close()

	stmt := fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
		cfg.Keyspace, rf,
	)
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	if err := session.Query(fmt.Sprintf("USE %s", cfg.Keyspace)).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to use keyspace: %w", err)
	}
	if err := session.Query(cqlCreateTable).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	return nil
}

func (s *CassandraStore) Append(ctx context.Context, msg *domain.Message) error {
	if msg.MessageID == "" {
		msg.MessageID = ulid.Make().String()
	}

	err := s.session.Query(cqlInsert,
		msg.RoomID, msg.SendTime, msg.MessageID, msg.SenderID, msg.Body,
	).WithContext(ctx).Exec()
	if err != nil {
		l := log.ForRoom(ctx, msg.RoomID, 0)
		l.Error().Err(err).Msg("cassandra insert failed")
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	return nil
}

func (s *CassandraStore) FetchPage(ctx context.Context, roomID int64, after *cursor.Position, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	// Query limit + 1 to determine if there are more results. CQL LIMIT is
	// a 32-bit int.
	cqlLimit := min(readLimit(limit), math.MaxInt32)
	var q *gocql.Query
	if after == nil {
		q = s.session.Query(cqlNewest, roomID, cqlLimit)
	} else {
		q = s.session.Query(cqlOlderThan, roomID, after.SendTime, after.MessageID, cqlLimit)
	}

	iter := q.WithContext(ctx).PageSize(min(cqlLimit, cassandraPageSize)).Iter()

	rows := newRowBuffer(limit)
	var msg domain.Message
	for iter.Scan(&msg.RoomID, &msg.SendTime, &msg.MessageID, &msg.SenderID, &msg.Body) {
		rows = append(rows, msg)
		msg = domain.Message{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	return buildPage(rows, limit), nil
}

func (s *CassandraStore) Close() error {
	s.session.Close()
	return nil
}
