package models

// HostKey - закрытый ключ, созданный УЦ для узла командой generate
type HostKey struct {
	Id        int    `db:"id"`
	Name      string `db:"name"`
	KeySealed []byte `db:"key_sealed"`
	KeySalt   []byte `db:"key_salt"`
}

var SchemaHostKey = `
CREATE TABLE IF NOT EXISTS host_keys (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    key_sealed BLOB NOT NULL,
    key_salt BLOB NOT NULL
);`
