package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kgraglabs/kgrag/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// document, cross-index and session store interfaces through wrapper
// types sharing one connection.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.kgrag/data/kgrag.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kgrag", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "kgrag.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// CrossIndex returns a CrossIndex interface backed by this store.
func (s *Store) CrossIndex() driven.CrossIndex {
	return &crossIndex{store: s}
}

// SessionStore returns a SessionStore interface backed by this store.
func (s *Store) SessionStore() driven.SessionStore {
	return &sessionStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or updates a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, uri, content_hash, content, version, metadata, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uri = excluded.uri,
			content_hash = excluded.content_hash,
			content = excluded.content,
			version = excluded.version,
			metadata = excluded.metadata,
			ingested_at = excluded.ingested_at
	`, doc.ID, doc.URI, doc.ContentHash, doc.Content, doc.Version,
		string(metadataJSON), doc.IngestedAt)

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// SaveChunks stores chunks for a document, replacing any previous set.
// Replaced chunks cascade their cross-index entries away so stale
// provenance never outlives its chunk.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	docID := chunks[0].DocumentID
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, position, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingBlob := float32SliceToBytes(chunk.Embedding)
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID,
			chunk.Position, chunk.Content, embeddingBlob); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, uri, content_hash, content, version, metadata, ingested_at
		FROM documents WHERE id = ?
	`, id)

	return scanDocument(row)
}

// GetDocumentByURI retrieves the latest version for a URI.
func (s *documentStore) GetDocumentByURI(ctx context.Context, uri string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, uri, content_hash, content, version, metadata, ingested_at
		FROM documents WHERE uri = ?
	`, uri)

	return scanDocument(row)
}

// GetChunks retrieves all chunks for a document in position order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, position, content, embedding
		FROM chunks WHERE id = ?
	`, id)

	var chunk domain.Chunk
	var embeddingBlob []byte
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position,
		&chunk.Content, &embeddingBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)

	return &chunk, nil
}

// ChunksWithoutEmbedding lists chunks awaiting an embedding, up to limit.
func (s *documentStore) ChunksWithoutEmbedding(ctx context.Context, limit int) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, position, content, embedding
		FROM chunks WHERE embedding IS NULL
		ORDER BY document_id, position
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// UpdateChunkEmbedding sets the embedding for a chunk.
func (s *documentStore) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE chunks SET embedding = ? WHERE id = ?",
		float32SliceToBytes(embedding), chunkID)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document; chunks and cross-index entries
// cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// ChunkCount returns the number of stored chunks.
func (s *documentStore) ChunkCount(ctx context.Context) (int, error) {
	var count int
	if err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// ==================== Cross-Index ====================

// crossIndex implements driven.CrossIndex. The chunk foreign key makes
// dangling chunk references impossible; node existence is the ingestion
// pipeline's responsibility since the graph lives in another backend.
type crossIndex struct {
	store *Store
}

var _ driven.CrossIndex = (*crossIndex)(nil)

// Record stores the (chunk, node) pair. Idempotent.
func (x *crossIndex) Record(ctx context.Context, chunkID, nodeID string) error {
	if chunkID == "" || nodeID == "" {
		return fmt.Errorf("%w: empty cross-index key", domain.ErrInvalidInput)
	}

	_, err := x.store.db.ExecContext(ctx, `
		INSERT INTO cross_index (chunk_id, node_id) VALUES (?, ?)
		ON CONFLICT(chunk_id, node_id) DO NOTHING
	`, chunkID, nodeID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return fmt.Errorf("%w: chunk %s does not exist", domain.ErrConsistency, chunkID)
		}
		return fmt.Errorf("recording cross-index entry: %w", err)
	}
	return nil
}

// ChunksFor returns the chunk IDs supporting a node or edge.
func (x *crossIndex) ChunksFor(ctx context.Context, nodeID string) ([]string, error) {
	return x.queryIDs(ctx,
		"SELECT chunk_id FROM cross_index WHERE node_id = ? ORDER BY chunk_id", nodeID)
}

// EntitiesFor returns the node/edge IDs a chunk mentions.
func (x *crossIndex) EntitiesFor(ctx context.Context, chunkID string) ([]string, error) {
	return x.queryIDs(ctx,
		"SELECT node_id FROM cross_index WHERE chunk_id = ? ORDER BY node_id", chunkID)
}

// DeleteChunk removes every entry referencing the chunk.
func (x *crossIndex) DeleteChunk(ctx context.Context, chunkID string) error {
	_, err := x.store.db.ExecContext(ctx, "DELETE FROM cross_index WHERE chunk_id = ?", chunkID)
	if err != nil {
		return fmt.Errorf("deleting cross-index entries: %w", err)
	}
	return nil
}

// Count returns the total number of entries.
func (x *crossIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := x.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cross_index").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting cross-index entries: %w", err)
	}
	return count, nil
}

func (x *crossIndex) queryIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := x.store.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying cross-index: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning cross-index entry: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cross-index: %w", err)
	}
	return ids, nil
}

// ==================== Session Store ====================

// sessionStore implements driven.SessionStore. Sequence assignment and
// the turn insert share one transaction so concurrent appends serialise
// without losing or duplicating numbers.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

// Get retrieves the state for a session.
func (s *sessionStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT id, created_at, last_write FROM sessions WHERE id = ?", sessionID)

	state := &domain.SessionState{Scratch: make(map[string]string)}
	if err := row.Scan(&state.ID, &state.CreatedAt, &state.LastWrite); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT seq, role, content, created_at
		FROM session_turns WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn domain.Turn
		if err := rows.Scan(&turn.Seq, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		state.Turns = append(state.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	scratchRows, err := s.store.db.QueryContext(ctx,
		"SELECT key, value FROM session_scratch WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying scratch: %w", err)
	}
	defer scratchRows.Close()

	for scratchRows.Next() {
		var k, v string
		if err := scratchRows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning scratch: %w", err)
		}
		state.Scratch[k] = v
	}
	if err := scratchRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scratch: %w", err)
	}

	return state, nil
}

// AppendTurn appends a turn with the next sequence number and slides
// LastWrite forward. Creates the session on first write.
func (s *sessionStore) AppendTurn(
	ctx context.Context, sessionID, role, content string, at time.Time,
) (domain.Turn, error) {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertSession(ctx, tx, sessionID, at); err != nil {
		return domain.Turn{}, err
	}

	var seq int64
	row := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM session_turns WHERE session_id = ?", sessionID)
	if err := row.Scan(&seq); err != nil {
		return domain.Turn{}, fmt.Errorf("assigning sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_turns (session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, seq, role, content, at); err != nil {
		return domain.Turn{}, fmt.Errorf("inserting turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Turn{}, fmt.Errorf("committing transaction: %w", err)
	}

	return domain.Turn{Seq: seq, Role: role, Content: content, CreatedAt: at}, nil
}

// SetScratch writes a scratch key and slides LastWrite forward.
func (s *sessionStore) SetScratch(ctx context.Context, sessionID, key, value string, at time.Time) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertSession(ctx, tx, sessionID, at); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_scratch (session_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value
	`, sessionID, key, value); err != nil {
		return fmt.Errorf("writing scratch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes a session outright; turns and scratch cascade.
func (s *sessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteOlderThan removes every session whose LastWrite predates the
// cutoff.
func (s *sessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.store.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE last_write < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("expiring sessions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking expiry: %w", err)
	}
	return int(affected), nil
}

// upsertSession creates the session on first write and slides LastWrite
// forward.
func upsertSession(ctx context.Context, tx *sql.Tx, sessionID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_write) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_write = excluded.last_write
	`, sessionID, at, at)
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// scanDocument scans a single document row.
func scanDocument(row *sql.Row) (*domain.Document, error) {
	var doc domain.Document
	var metadataJSON sql.NullString

	if err := row.Scan(&doc.ID, &doc.URI, &doc.ContentHash, &doc.Content,
		&doc.Version, &metadataJSON, &doc.IngestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &doc, nil
}

// scanChunks scans chunk rows.
func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var embeddingBlob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position,
			&chunk.Content, &embeddingBlob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
