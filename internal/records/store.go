// internal/records/store.go
//
// SQLite-backed persistence for best times and finished-game history.
// Every row is keyed by an owner id: a user id once logged in, otherwise the
// anonymous cookie id. For binds one owner to the engine's RecordStore interface.
// An anonymous id claimed by a user resolves to that user for the rest of the
// process, so games still running at login write under the account.

package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robalobadob/padel-memory/internal/game"
)

type Store struct {
	db *sql.DB

	// claimed maps anonymous id -> user id.
	claimed sync.Map
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Resolve returns the user that claimed owner, or owner itself.
func (s *Store) Resolve(owner string) string {
	if v, ok := s.claimed.Load(owner); ok {
		return v.(string)
	}
	return owner
}

// Best returns the stored value for (owner, key).
func (s *Store) Best(ctx context.Context, owner, key string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE owner_id=? AND key=?`, owner, key,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Put writes (owner, key) when no record exists or ms is lower than the
// stored integer value. Rows holding a non-integer value are left alone.
func (s *Store) Put(ctx context.Context, owner, key string, ms int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(owner_id, key, value, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(owner_id, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
		 WHERE typeof(records.value) = 'integer' AND excluded.value < records.value`,
		owner, key, ms, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Record is one stored key/value pair.
type Record struct {
	Key       string `json:"key"`
	Cards     int    `json:"cards"`
	ValueMs   int64  `json:"valueMs"`
	UpdatedAt string `json:"updatedAt"`
}

// List returns every record held by owner, smallest boards first.
func (s *Store) List(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM records WHERE owner_id=?`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.ValueMs, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Cards = cardsFromKey(r.Key)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRecords(out)
	return out, nil
}

// LBRow is one leaderboard line. Owner ids stay server side: an anonymous id
// is the player's cookie credential.
type LBRow struct {
	Rank      int    `json:"rank"`
	OwnerID   string `json:"-"`
	Username  string `json:"username,omitempty"`
	Anonymous bool   `json:"anonymous"`
	ValueMs   int64  `json:"valueMs"`
	UpdatedAt string `json:"updatedAt"`
}

// Leaderboard returns the fastest best times for a board size.
func (s *Store) Leaderboard(ctx context.Context, boardCards, limit int) ([]LBRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.owner_id, COALESCE(u.username, ''), r.value, r.updated_at
		 FROM records r LEFT JOIN users u ON u.id = r.owner_id
		 WHERE r.key=?
		 ORDER BY r.value ASC, r.updated_at ASC
		 LIMIT ?`, game.BestTimeKey(boardCards), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.OwnerID, &r.Username, &r.ValueMs, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Rank = len(out) + 1
		r.Anonymous = r.Username == ""
		out = append(out, r)
	}
	return out, rows.Err()
}

// Claim moves an anonymous owner's records and history onto a user. When both
// hold a record for the same key the lower time wins.
func (s *Store) Claim(ctx context.Context, anonID, userID string) error {
	if anonID == "" || userID == "" || anonID == userID {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records(owner_id, key, value, updated_at)
		 SELECT ?, key, value, updated_at FROM records WHERE owner_id=?
		 ON CONFLICT(owner_id, key) DO UPDATE SET
		   value=min(records.value, excluded.value),
		   updated_at=CASE WHEN excluded.value < records.value THEN excluded.updated_at ELSE records.updated_at END`,
		userID, anonID); err != nil {
		return fmt.Errorf("merge records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE owner_id=?`, anonID); err != nil {
		return fmt.Errorf("drop anon records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE games SET owner_id=? WHERE owner_id=?`, userID, anonID); err != nil {
		return fmt.Errorf("claim games: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.claimed.Store(anonID, userID)
	return nil
}

// ------------------------------- history -----------------------------------

// Finished is one completed deal.
type Finished struct {
	GameID     string `json:"gameId"`
	Generation uint64 `json:"generation"`
	OwnerID    string `json:"-"`
	Players    int    `json:"players"`
	BoardCards int    `json:"boardCards"`
	ImageSet   int    `json:"imageSet"`
	Scores     []int  `json:"scores"`
	Winners    []int  `json:"winners"`
	ElapsedMs  *int64 `json:"elapsedMs,omitempty"`
	FinishedAt string `json:"finishedAt"`
}

// FromSnapshot converts a completed snapshot into a history row.
func FromSnapshot(owner string, snap game.Snapshot, at time.Time) Finished {
	winners := game.Winners(snap.Scores).Winners
	if snap.Outcome != nil {
		winners = snap.Outcome.Winners
	}
	return Finished{
		GameID:     snap.GameID,
		Generation: snap.Generation,
		OwnerID:    owner,
		Players:    snap.Players,
		BoardCards: snap.Board.Cards,
		ImageSet:   snap.ImageSet,
		Scores:     snap.Scores,
		Winners:    winners,
		ElapsedMs:  snap.ElapsedMs,
		FinishedAt: at.UTC().Format(time.RFC3339),
	}
}

// InsertFinished stores a history row. Re-inserting the same deal is a no-op.
func (s *Store) InsertFinished(ctx context.Context, f Finished) error {
	scores, err := json.Marshal(f.Scores)
	if err != nil {
		return err
	}
	winners, err := json.Marshal(f.Winners)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO games(id, generation, owner_id, players, board_cards, image_set, scores, winners, elapsed_ms, finished_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		f.GameID, f.Generation, f.OwnerID, f.Players, f.BoardCards, f.ImageSet,
		string(scores), string(winners), f.ElapsedMs, f.FinishedAt,
	)
	return err
}

// History lists an owner's finished deals, newest first.
func (s *Store) History(ctx context.Context, owner string, limit int) ([]Finished, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generation, players, board_cards, image_set, scores, winners, elapsed_ms, finished_at
		 FROM games WHERE owner_id=? ORDER BY finished_at DESC, rowid DESC LIMIT ?`, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Finished{}
	for rows.Next() {
		var (
			f               Finished
			scores, winners string
			elapsed         sql.NullInt64
		)
		if err := rows.Scan(&f.GameID, &f.Generation, &f.Players, &f.BoardCards, &f.ImageSet,
			&scores, &winners, &elapsed, &f.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(scores), &f.Scores); err != nil {
			return nil, fmt.Errorf("decode scores for %s: %w", f.GameID, err)
		}
		if err := json.Unmarshal([]byte(winners), &f.Winners); err != nil {
			return nil, fmt.Errorf("decode winners for %s: %w", f.GameID, err)
		}
		if elapsed.Valid {
			v := elapsed.Int64
			f.ElapsedMs = &v
		}
		f.OwnerID = owner
		out = append(out, f)
	}
	return out, rows.Err()
}

// ------------------------------ engine glue --------------------------------

// For returns a game.RecordStore bound to one owner. Engine calls happen
// outside any request, so they run on a background context with a short deadline.
func (s *Store) For(owner string) game.RecordStore {
	return ownerRecords{s: s, owner: owner}
}

type ownerRecords struct {
	s     *Store
	owner string
}

const storeTimeout = 3 * time.Second

func (o ownerRecords) Get(key string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return o.s.Best(ctx, o.s.Resolve(o.owner), key)
}

func (o ownerRecords) Set(key string, ms int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	return o.s.Put(ctx, o.s.Resolve(o.owner), key, ms)
}

// cardsFromKey parses bestTime_{n}; unknown shapes give 0.
func cardsFromKey(key string) int {
	var n int
	if _, err := fmt.Sscanf(strings.TrimPrefix(key, "bestTime_"), "%d", &n); err != nil {
		return 0
	}
	return n
}
