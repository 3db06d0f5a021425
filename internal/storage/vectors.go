package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
)

// UpsertVector stores or replaces a product's embedding under a model version.
// The row is replaced wholesale; there is no partial update of a vector.
func (s *Store) UpsertVector(ctx context.Context, v models.EmbeddingVector) error {
	blob := encodeFloat32s(v.Vector)
	updatedAt := v.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_vectors (product_id, model_version, dimension, embedding, text_hash, source_text, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_id, model_version) DO UPDATE SET
			dimension = excluded.dimension,
			embedding = excluded.embedding,
			text_hash = excluded.text_hash,
			source_text = excluded.source_text,
			updated_at = excluded.updated_at`,
		v.ProductID, v.ModelVersion, len(v.Vector), blob, v.TextHash, v.SourceText, updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert vector for product %s: %w", v.ProductID, err)
	}
	return nil
}

// VectorsForVersion loads every stored vector for a model version.
func (s *Store) VectorsForVersion(ctx context.Context, modelVersion string) ([]models.EmbeddingVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, model_version, embedding, text_hash, source_text, updated_at
		FROM product_vectors
		WHERE model_version = ?
		ORDER BY product_id ASC`, modelVersion)
	if err != nil {
		return nil, fmt.Errorf("query vectors for version %s: %w", modelVersion, err)
	}
	defer rows.Close()

	var vectors []models.EmbeddingVector
	for rows.Next() {
		var v models.EmbeddingVector
		var blob []byte
		var updatedAt string
		if err := rows.Scan(&v.ProductID, &v.ModelVersion, &blob, &v.TextHash, &v.SourceText, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		vec, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for product %s: %w", v.ProductID, err)
		}
		v.Vector = vec

		t, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at for product %s: %w", v.ProductID, err)
		}
		v.UpdatedAt = t
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// DeleteVector removes one product's vector under a model version. Used when
// the product leaves the catalog.
func (s *Store) DeleteVector(ctx context.Context, productID, modelVersion string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM product_vectors WHERE product_id = ? AND model_version = ?`,
		productID, modelVersion)
	if err != nil {
		return fmt.Errorf("delete vector for product %s: %w", productID, err)
	}
	return nil
}

// PurgeVectors removes every vector stored under a model version. Used after
// a version cutover window closes.
func (s *Store) PurgeVectors(ctx context.Context, modelVersion string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_vectors WHERE model_version = ?`, modelVersion)
	if err != nil {
		return 0, fmt.Errorf("purge vectors for version %s: %w", modelVersion, err)
	}
	return res.RowsAffected()
}

func encodeFloat32s(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeFloat32s(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	values := make([]float32, len(blob)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return values, nil
}
