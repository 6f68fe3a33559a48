package db

import (
	"context"
	"database/sql"
	"strings"

	"rideguardian/internal/apperrors"
	"rideguardian/internal/constants"
	"rideguardian/internal/models"
)

const templateColumns = `id, company_id, name, document_type, layout_json, is_default, created_at, updated_at`

func (s *Store) seedDefaultTemplatesTx(ctx context.Context, q querier, companyID int64) error {
	defaults := []models.FahrtenbuchTemplate{
		{CompanyID: companyID, Name: constants.DEFAULT_TEMPLATE_FAHRTENBUCH, DocumentType: constants.DOCUMENT_FAHRTENBUCH, LayoutJSON: "{}", IsDefault: true},
		{CompanyID: companyID, Name: constants.DEFAULT_TEMPLATE_STUNDENZETTEL, DocumentType: constants.DOCUMENT_STUNDENZETTEL, LayoutJSON: "{}", IsDefault: true},
	}
	for _, t := range defaults {
		if err := s.saveTemplateTx(ctx, q, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) saveTemplateTx(ctx context.Context, q querier, t models.FahrtenbuchTemplate) error {
	now := s.now()
	if t.IsDefault {
		// Один шаблон по умолчанию на тип документа.
		if _, err := s.exec(ctx, q, `UPDATE fahrtenbuch_templates SET is_default = FALSE, updated_at = ?
            WHERE company_id = ? AND document_type = ? AND name <> ?`, now, t.CompanyID, t.DocumentType, t.Name); err != nil {
			return err
		}
	}
	_, err := s.exec(ctx, q, `
        INSERT INTO fahrtenbuch_templates (company_id, name, document_type, layout_json, is_default, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (company_id, name) DO UPDATE SET
            document_type = EXCLUDED.document_type,
            layout_json = EXCLUDED.layout_json,
            is_default = EXCLUDED.is_default,
            updated_at = EXCLUDED.updated_at`,
		t.CompanyID, t.Name, t.DocumentType, t.LayoutJSON, t.IsDefault, now, now)
	return mapDBError(err, "Vorlage")
}

// SaveTemplate создает или обновляет шаблон документа тенанта по имени.
func (s *Store) SaveTemplate(ctx context.Context, t models.FahrtenbuchTemplate) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return apperrors.Validation("name", "Vorlagenname darf nicht leer sein")
	}
	if t.DocumentType != constants.DOCUMENT_FAHRTENBUCH && t.DocumentType != constants.DOCUMENT_STUNDENZETTEL {
		return apperrors.Validation("document_type", "Unbekannter Dokumenttyp %q", t.DocumentType)
	}
	if t.LayoutJSON == "" {
		t.LayoutJSON = "{}"
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.companyExistsTx(ctx, tx, t.CompanyID); err != nil {
			return err
		}
		return s.saveTemplateTx(ctx, tx, t)
	})
}

// GetDefaultTemplate возвращает шаблон по умолчанию для типа документа.
func (s *Store) GetDefaultTemplate(ctx context.Context, companyID int64, documentType string) (models.FahrtenbuchTemplate, error) {
	var t models.FahrtenbuchTemplate
	var createdAt, updatedAt sql.NullTime
	err := s.queryRow(ctx, s.DB, `SELECT `+templateColumns+` FROM fahrtenbuch_templates
        WHERE company_id = ? AND document_type = ? AND is_default = TRUE ORDER BY id ASC LIMIT 1`,
		companyID, documentType).Scan(&t.ID, &t.CompanyID, &t.Name, &t.DocumentType, &t.LayoutJSON, &t.IsDefault, &createdAt, &updatedAt)
	if err != nil {
		return t, mapDBError(err, "Vorlage")
	}
	t.CreatedAt = s.local(createdAt.Time)
	t.UpdatedAt = s.local(updatedAt.Time)
	return t, nil
}
