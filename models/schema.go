package models

// Schemas - все таблицы УЦ в порядке создания
var Schemas = []string{
	SchemaCAIdentity,
	SchemaCerts,
	SchemaCSR,
	SchemaHostKey,
	SchemaRevoked,
	SchemaCRL,
	SchemaInventory,
}
