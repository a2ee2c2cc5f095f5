package models

// Cert - подписанный сертификат узла
type Cert struct {
	Id           int    `db:"id"`
	Name         string `db:"name"`
	SerialNumber string `db:"serial_number"`
	CertPEM      string `db:"cert_pem"`
	CreateTime   string `db:"create_time"`
	ExpireTime   string `db:"expire_time"`
}

var SchemaCerts = `
CREATE TABLE IF NOT EXISTS certs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    serial_number TEXT NOT NULL,
    cert_pem TEXT NOT NULL,
    create_time TEXT NOT NULL DEFAULT '',
    expire_time TEXT NOT NULL DEFAULT ''
);`
