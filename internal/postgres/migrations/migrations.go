// Package migrations embeds the SQL schema files applied by the
// `materializer migrate` command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_personnel.sql",
	"002_create_task_definitions.sql",
	"003_create_exception_dates.sql",
	"004_create_task_instances.sql",
	"005_create_materialization_runs.sql",
}
