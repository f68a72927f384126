// Package assets embeds the static files shipped with the binaries:
// database migrations, email templates and the common passwords list.
package assets

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt.gz
var FS embed.FS

const MigrationsDir = "migrations"
