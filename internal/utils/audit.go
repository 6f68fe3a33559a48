package utils

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
)

// AuditReference - строка, которую содержит QR-код выгруженного документа.
func AuditReference(auditID, docType, period string) string {
	return fmt.Sprintf("rideguardian:%s:%s:%s", docType, period, auditID)
}

// GenerateAuditQRCode кодирует ссылку аудита в PNG заданного размера (px).
func GenerateAuditQRCode(reference string, size int) ([]byte, error) {
	if reference == "" {
		return nil, fmt.Errorf("пустая ссылка аудита")
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(reference, qrcode.Medium, size)
	if err != nil {
		log.Printf("GenerateAuditQRCode: ошибка кодирования QR-кода для '%s': %v", reference, err)
		return nil, err
	}
	return png, nil
}
