package models

// Revoked - отозванный сертификат, источник записей CRL
type Revoked struct {
	Id           int    `db:"id"`
	SerialNumber string `db:"serial_number"`
	Name         string `db:"name"`
	ReasonRevoke string `db:"reason_revoke"`
	DataRevoke   string `db:"data_revoke"`
}

var SchemaRevoked = `
CREATE TABLE IF NOT EXISTS revoked (
   id INTEGER PRIMARY KEY AUTOINCREMENT,
   serial_number TEXT NOT NULL DEFAULT '' UNIQUE,
   name TEXT NOT NULL DEFAULT '',
   reason_revoke TEXT NOT NULL DEFAULT '',
   data_revoke TEXT NOT NULL DEFAULT ''
);`
