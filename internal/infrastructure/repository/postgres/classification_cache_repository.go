package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/shipment-tariff-agent/internal/core/domain"
)

const classificationColumns = `content_hash, normalized_description, destination_country, origin_country,
	export_code, import_code, duty_rate, confidence_label, classifier_description,
	classification_response, tariff_response, updated_at`

// ClassificationCacheRepository stores classification results keyed by
// content hash. Rows are never deleted by the enrichment pipeline.
type ClassificationCacheRepository struct {
	db *sql.DB
}

func NewClassificationCacheRepository(db *sql.DB) *ClassificationCacheRepository {
	return &ClassificationCacheRepository{db: db}
}

func (r *ClassificationCacheRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026041501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS tariff_classifications (
	content_hash TEXT PRIMARY KEY,
	normalized_description TEXT NOT NULL,
	destination_country TEXT NOT NULL,
	origin_country TEXT NOT NULL,
	export_code TEXT NOT NULL DEFAULT '',
	import_code TEXT NOT NULL DEFAULT '',
	duty_rate DOUBLE PRECISION,
	confidence_label TEXT NOT NULL DEFAULT '',
	classifier_description TEXT NOT NULL DEFAULT '',
	classification_response JSONB,
	tariff_response JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tariff_classifications_route ON tariff_classifications(destination_country, origin_country);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *ClassificationCacheRepository) GetBatch(ctx context.Context, hashes []string, destination, origin string) (map[string]domain.ClassificationCacheEntry, error) {
	out := make(map[string]domain.ClassificationCacheEntry, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(hashes)+2)
	args = append(args, destination, origin)
	placeholders := make([]string, 0, len(hashes))
	for i, h := range hashes {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, h)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+classificationColumns+`
FROM tariff_classifications
WHERE destination_country = $1 AND origin_country = $2 AND content_hash IN (`+strings.Join(placeholders, ",")+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query classifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		out[entry.ContentHash] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classifications: %w", err)
	}
	return out, nil
}

// Upsert is last-write-wins: concurrent passes resolving the same hash
// produce equivalent rows.
func (r *ClassificationCacheRepository) Upsert(ctx context.Context, entry domain.ClassificationCacheEntry) error {
	if strings.TrimSpace(entry.ContentHash) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert classification", fmt.Errorf("content hash is required"))
	}
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var dutyRate sql.NullFloat64
	if entry.DutyRate != nil {
		dutyRate = sql.NullFloat64{Float64: *entry.DutyRate, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO tariff_classifications (`+classificationColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (content_hash) DO UPDATE SET
	normalized_description = EXCLUDED.normalized_description,
	destination_country = EXCLUDED.destination_country,
	origin_country = EXCLUDED.origin_country,
	export_code = EXCLUDED.export_code,
	import_code = EXCLUDED.import_code,
	duty_rate = EXCLUDED.duty_rate,
	confidence_label = EXCLUDED.confidence_label,
	classifier_description = EXCLUDED.classifier_description,
	classification_response = EXCLUDED.classification_response,
	tariff_response = EXCLUDED.tariff_response,
	updated_at = EXCLUDED.updated_at
`,
		entry.ContentHash, entry.NormalizedDescription, entry.DestinationCountry, entry.OriginCountry,
		entry.ExportCode, entry.ImportCode, dutyRate, string(entry.ConfidenceLabel), entry.ClassifierDescription,
		nullableJSON(entry.ClassificationResponse), nullableJSON(entry.TariffResponse), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert classification: %w", err)
	}
	return nil
}

func scanClassification(rows *sql.Rows) (domain.ClassificationCacheEntry, error) {
	var entry domain.ClassificationCacheEntry
	var dutyRate sql.NullFloat64
	var confidence string
	var classificationRaw, tariffRaw []byte

	err := rows.Scan(
		&entry.ContentHash, &entry.NormalizedDescription, &entry.DestinationCountry, &entry.OriginCountry,
		&entry.ExportCode, &entry.ImportCode, &dutyRate, &confidence, &entry.ClassifierDescription,
		&classificationRaw, &tariffRaw, &entry.UpdatedAt,
	)
	if err != nil {
		return domain.ClassificationCacheEntry{}, fmt.Errorf("scan classification: %w", err)
	}
	if dutyRate.Valid {
		v := dutyRate.Float64
		entry.DutyRate = &v
	}
	entry.ConfidenceLabel = domain.ConfidenceLabel(confidence)
	if len(classificationRaw) > 0 {
		entry.ClassificationResponse = json.RawMessage(classificationRaw)
	}
	if len(tariffRaw) > 0 {
		entry.TariffResponse = json.RawMessage(tariffRaw)
	}
	return entry, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
