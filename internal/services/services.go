package services

import (
	"github.com/Masterminds/squirrel"
)

// psql builds every query in this package with Postgres placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
