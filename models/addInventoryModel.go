package models

// Inventory - запись о каждом выпущенном сертификате
type Inventory struct {
	Id           int    `db:"id"`
	SerialNumber string `db:"serial_number"`
	Name         string `db:"name"`
	NotBefore    string `db:"not_before"`
	NotAfter     string `db:"not_after"`
}

var SchemaInventory = `
CREATE TABLE IF NOT EXISTS inventory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	serial_number TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	not_before TEXT NOT NULL DEFAULT '',
	not_after TEXT NOT NULL DEFAULT ''
);`
