package models

// CAIdentity - собственное удостоверение УЦ: сертификат и зашифрованный ключ
type CAIdentity struct {
	Id         int    `db:"id"`
	CertPEM    string `db:"cert_pem"`
	KeySealed  []byte `db:"key_sealed"`
	KeySalt    []byte `db:"key_salt"`
	NextSerial int64  `db:"next_serial"`
	CreateTime string `db:"create_time"`
}

var SchemaCAIdentity = `
CREATE TABLE IF NOT EXISTS ca_identity (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    cert_pem TEXT NOT NULL,
    key_sealed BLOB NOT NULL,
    key_salt BLOB NOT NULL,
    next_serial INTEGER NOT NULL DEFAULT 2,
    create_time TEXT NOT NULL DEFAULT ''
);`
