package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// encryptionKey - ключ AES-256, задается InitEncryptionKey.
var encryptionKey []byte

// InitEncryptionKey читает ключ (64 HEX-символа) из переменной окружения envName.
// Пустая переменная не ошибка: зашифрованные секреты тогда недоступны.
func InitEncryptionKey(envName string) error {
	keyHex := os.Getenv(envName)
	if keyHex == "" {
		log.Warnf("Ключ шифрования %s не задан, зашифрованные секреты недоступны", envName)
		return nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("некорректный формат ключа %s (не HEX): %w", envName, err)
	}
	if len(key) != 32 {
		return fmt.Errorf("некорректная длина ключа %s: требуется 32 байта, получено %d", envName, len(key))
	}
	encryptionKey = key
	log.Println("Ключ шифрования успешно инициализирован.")
	return nil
}

func newGCM() (cipher.AEAD, error) {
	if len(encryptionKey) == 0 {
		return nil, fmt.Errorf("ключ шифрования не инициализирован")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания шифра: %w", err)
	}
	return cipher.NewGCM(block)
}

// EncryptSecret шифрует строку AES-256-GCM и возвращает HEX (nonce в начале).
func EncryptSecret(plain string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}
	return hex.EncodeToString(gcm.Seal(nonce, nonce, []byte(plain), nil)), nil
}

// DecryptSecret расшифровывает результат EncryptSecret (например MAPS_API_KEY_ENC).
func DecryptSecret(cipherHex string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(cipherHex)
	if err != nil {
		return "", fmt.Errorf("не удалось декодировать секрет из hex: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("размер зашифрованного текста меньше размера nonce")
	}
	nonce, body := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		log.Printf("DecryptSecret: ошибка дешифрования (неверный ключ или поврежденные данные): %v", err)
		return "", fmt.Errorf("ошибка дешифрования секрета: %w", err)
	}
	return string(plain), nil
}

// HashToken - bcrypt-хэш API-токена для хранения в конфигурации.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckToken сравнивает токен с bcrypt-хэшем.
func CheckToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
