package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/prismfeed/prism/pkg/models"
)

type pgTemplateRepo struct {
	db *sql.DB
}

func (r *pgTemplateRepo) Create(ctx context.Context, tmpl *models.Template) error {
	rules, selectors, processing, err := marshalTemplate(tmpl)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO templates (name, match_rules, selectors, processing, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$5) RETURNING id`,
		tmpl.Name, rules, selectors, processing, tmpl.CreatedAt,
	).Scan(&tmpl.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *pgTemplateRepo) Get(ctx context.Context, id int64) (*models.Template, error) {
	tmpl, err := scanTemplate(r.db.QueryRowContext(ctx,
		`SELECT id, name, match_rules, selectors, processing, created_at, updated_at
		 FROM templates WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tmpl, nil
}

func (r *pgTemplateRepo) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, match_rules, selectors, processing, created_at, updated_at
		 FROM templates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	templates := []*models.Template{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

func (r *pgTemplateRepo) Update(ctx context.Context, tmpl *models.Template) error {
	rules, selectors, processing, err := marshalTemplate(tmpl)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE templates SET name=$2, match_rules=$3, selectors=$4, processing=$5, updated_at=now()
		 WHERE id = $1`,
		tmpl.ID, tmpl.Name, rules, selectors, processing)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	return requireRow(result)
}

func (r *pgTemplateRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return requireRow(result)
}

func marshalTemplate(tmpl *models.Template) (rules, selectors, processing []byte, err error) {
	if rules, err = json.Marshal(tmpl.MatchRules); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal match rules: %w", err)
	}
	if selectors, err = json.Marshal(tmpl.Selectors); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal selectors: %w", err)
	}
	if processing, err = json.Marshal(tmpl.Processing); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal processing: %w", err)
	}
	return rules, selectors, processing, nil
}

func scanTemplate(row interface{ Scan(...any) error }) (*models.Template, error) {
	var tmpl models.Template
	var rules, selectors, processing []byte
	if err := row.Scan(&tmpl.ID, &tmpl.Name, &rules, &selectors, &processing,
		&tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rules, &tmpl.MatchRules); err != nil {
		return nil, fmt.Errorf("unmarshal match rules: %w", err)
	}
	if err := json.Unmarshal(selectors, &tmpl.Selectors); err != nil {
		return nil, fmt.Errorf("unmarshal selectors: %w", err)
	}
	if err := json.Unmarshal(processing, &tmpl.Processing); err != nil {
		return nil, fmt.Errorf("unmarshal processing: %w", err)
	}
	return &tmpl, nil
}
