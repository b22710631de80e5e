package storage

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// ActivePatterns returns every active pattern, oldest first
func (s *Store) ActivePatterns(ctx context.Context) ([]models.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pattern_type, pattern_value, is_regex, target_type, target_id,
		       target_name, is_auto_approve, confidence_boost, description
		FROM patterns
		WHERE is_active = 1
		ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list active patterns", err)
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		var (
			id          int64
			p           models.Pattern
			kind        string
			targetType  string
			isRegex     int
			autoApprove int
			boost       string
		)
		if err := rows.Scan(&id, &kind, &p.Value, &isRegex, &targetType, &p.TargetID,
			&p.TargetName, &autoApprove, &boost, &p.Description); err != nil {
			return nil, errors.StorageError(errors.CodeQueryFailed, "scan pattern", err)
		}

		p.ID = strconv.FormatInt(id, 10)
		p.Kind = models.PatternKind(kind)
		p.TargetType = models.TargetType(targetType)
		p.IsRegex = isRegex == 1
		p.AutoApprove = autoApprove == 1
		if p.Boost, err = decimal.NewFromString(boost); err != nil {
			s.logger.WithFields(logger.Fields{"pattern_id": p.ID, "boost": boost}).Warn("Invalid pattern boost, using zero")
			p.Boost = decimal.Zero
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError(errors.CodeQueryFailed, "list active patterns", err)
	}
	return patterns, nil
}

// SubmitPattern stores a pattern. Submitting a rule that already exists for
// the same target reactivates it with the new boost.
func (s *Store) SubmitPattern(ctx context.Context, p models.Pattern) error {
	if err := p.Validate(); err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "pattern", p.Value, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (pattern_type, pattern_value, is_regex, target_type, target_id,
		                      target_name, is_auto_approve, confidence_boost, description,
		                      is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (pattern_type, pattern_value, target_id) DO UPDATE SET
			is_regex         = excluded.is_regex,
			target_type      = excluded.target_type,
			target_name      = excluded.target_name,
			is_auto_approve  = excluded.is_auto_approve,
			confidence_boost = excluded.confidence_boost,
			description      = excluded.description,
			is_active        = 1`,
		string(p.Kind), p.Value, boolToInt(p.IsRegex), string(p.TargetType), p.TargetID,
		p.TargetName, boolToInt(p.AutoApprove), p.Boost.StringFixed(2), p.Description, s.timestamp())
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "submit pattern", err)
	}

	s.logger.WithFields(logger.Fields{
		"pattern_type":  p.Kind,
		"pattern_value": p.Value,
		"target_id":     p.TargetID,
	}).Debug("Pattern stored")
	return nil
}

// DeactivatePattern stops a pattern from being loaded into future batches
func (s *Store) DeactivatePattern(ctx context.Context, id string) error {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidValue, "pattern id", id, err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE patterns SET is_active = 0 WHERE id = ?`, numericID)
	if err != nil {
		return errors.StorageError(errors.CodeQueryFailed, "deactivate pattern", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.StorageError(errors.CodeNotFound, "pattern "+id, nil)
	}
	return nil
}
