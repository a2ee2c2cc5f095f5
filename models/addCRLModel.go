package models

// CRL - текущий список отзыва УЦ
type CRL struct {
	Id         int    `db:"id"`
	CrlNumber  int64  `db:"crl_number"` // последовательный номер для отслеживания обновлений
	DataCRL    []byte `db:"data_crl"`   // DER
	ThisUpdate string `db:"this_update"`
	NextUpdate string `db:"next_update"`
}

var SchemaCRL = `
CREATE TABLE IF NOT EXISTS crl (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	crl_number INTEGER NOT NULL,
	data_crl BLOB NOT NULL,
	this_update TEXT NOT NULL DEFAULT '',
	next_update TEXT NOT NULL DEFAULT ''
);`
