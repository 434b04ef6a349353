package postgres

import sq "github.com/Masterminds/squirrel"

// Builder returns a squirrel statement builder using PostgreSQL
// placeholders ($1, $2, ...).
func Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
