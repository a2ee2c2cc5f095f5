package models

// CSR - запрос на сертификат, ожидающий подписи
type CSR struct {
	Id         int    `db:"id"`
	Name       string `db:"name"`
	CSRPEM     string `db:"csr_pem"`
	CreateTime string `db:"create_time"`
}

var SchemaCSR = `
CREATE TABLE IF NOT EXISTS csrs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    csr_pem TEXT NOT NULL,
    create_time TEXT NOT NULL DEFAULT ''
);`
