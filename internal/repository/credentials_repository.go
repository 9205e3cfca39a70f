package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"tradegate/pkg/crypto"
)

// Ошибки репозитория учётных данных
var (
	ErrCredentialsNotFound = errors.New("exchange credentials not found")
)

// ExchangeCredentials - учётные данные биржи в открытом виде.
// Живут только в памяти процесса: в БД лежат зашифрованными.
type ExchangeCredentials struct {
	Exchange   string
	APIKey     string
	Secret     string
	Passphrase string // нужен только coinbase
}

// CredentialsRepository - работа с таблицей exchange_credentials
//
// API ключи и секреты шифруются AES-256-GCM перед записью и
// расшифровываются при чтении. Ключ шифрования приходит из
// конфигурации и в БД не попадает.
type CredentialsRepository struct {
	db  *sql.DB
	key []byte // 32 байта для AES-256
}

// NewCredentialsRepository создает новый экземпляр репозитория
func NewCredentialsRepository(db *sql.DB, encryptionKey []byte) *CredentialsRepository {
	return &CredentialsRepository{db: db, key: encryptionKey}
}

// Save сохраняет учётные данные биржи, шифруя секреты.
// Повторный Save для той же биржи заменяет запись.
func (r *CredentialsRepository) Save(creds *ExchangeCredentials) error {
	apiKey, err := crypto.Encrypt(creds.APIKey, r.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}
	secret, err := crypto.Encrypt(creds.Secret, r.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}
	passphrase := ""
	if creds.Passphrase != "" {
		passphrase, err = crypto.Encrypt(creds.Passphrase, r.key)
		if err != nil {
			return fmt.Errorf("failed to encrypt passphrase: %w", err)
		}
	}

	query := `
		INSERT INTO exchange_credentials (exchange, api_key_encrypted, secret_encrypted, passphrase_encrypted, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (exchange) DO UPDATE SET
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			secret_encrypted = EXCLUDED.secret_encrypted,
			passphrase_encrypted = EXCLUDED.passphrase_encrypted,
			updated_at = NOW()`

	if _, err := r.db.Exec(query, creds.Exchange, apiKey, secret, passphrase); err != nil {
		return fmt.Errorf("failed to save credentials for %s: %w", creds.Exchange, err)
	}
	return nil
}

// Get возвращает расшифрованные учётные данные биржи
func (r *CredentialsRepository) Get(exchangeName string) (*ExchangeCredentials, error) {
	query := `
		SELECT exchange, api_key_encrypted, secret_encrypted, passphrase_encrypted
		FROM exchange_credentials
		WHERE exchange = $1`

	var creds ExchangeCredentials
	var apiKey, secret, passphrase string

	err := r.db.QueryRow(query, exchangeName).Scan(&creds.Exchange, &apiKey, &secret, &passphrase)
	if err == sql.ErrNoRows {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials for %s: %w", exchangeName, err)
	}

	if creds.APIKey, err = crypto.Decrypt(apiKey, r.key); err != nil {
		return nil, fmt.Errorf("failed to decrypt api key for %s: %w", exchangeName, err)
	}
	if creds.Secret, err = crypto.Decrypt(secret, r.key); err != nil {
		return nil, fmt.Errorf("failed to decrypt secret for %s: %w", exchangeName, err)
	}
	if passphrase != "" {
		if creds.Passphrase, err = crypto.Decrypt(passphrase, r.key); err != nil {
			return nil, fmt.Errorf("failed to decrypt passphrase for %s: %w", exchangeName, err)
		}
	}

	return &creds, nil
}

// List возвращает имена бирж, для которых сохранены учётные данные
func (r *CredentialsRepository) List() ([]string, error) {
	rows, err := r.db.Query(`SELECT exchange FROM exchange_credentials ORDER BY exchange`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan exchange name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete удаляет учётные данные биржи
func (r *CredentialsRepository) Delete(exchangeName string) error {
	result, err := r.db.Exec(`DELETE FROM exchange_credentials WHERE exchange = $1`, exchangeName)
	if err != nil {
		return fmt.Errorf("failed to delete credentials for %s: %w", exchangeName, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCredentialsNotFound
	}
	return nil
}
