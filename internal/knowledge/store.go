package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

const defaultSearchLimit = 5

// Store reads embedded chunks from assistant.knowledge_chunks.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Search returns the chunks nearest to embedding by cosine distance,
// restricted to storeID.
func (s *Store) Search(ctx context.Context, storeID string, embedding []float32, limit int) ([]Chunk, error) {
	if storeID == "" {
		return nil, errors.New("store id is required")
	}
	if len(embedding) == 0 {
		return nil, errors.New("embedding is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id,
			c.article_id,
			a.title,
			COALESCE(a.url, ''),
			c.content,
			1 - (c.embedding <=> $2) AS similarity
		FROM assistant.knowledge_chunks c
		JOIN assistant.knowledge_articles a ON a.id = c.article_id
		WHERE c.store_id = $1
		ORDER BY c.embedding <=> $2, c.id
		LIMIT $3
	`, storeID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(
			&chunk.ChunkID,
			&chunk.ArticleID,
			&chunk.ArticleTitle,
			&chunk.ArticleURL,
			&chunk.Content,
			&chunk.Score,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge chunks: %w", err)
	}
	return chunks, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
