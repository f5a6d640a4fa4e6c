/*
Package migration manages the relational schema for escalations and
processed-loan history across PostgreSQL, MySQL, and SQLite.

# Overview

Versioned SQL files for each dialect are embedded into the binary and
applied through golang-migrate, so the `loanflow migrate` subcommands
work against any configured database without external files. SQLite
runs on the pure-Go modernc driver; no cgo is involved.

# Core types

  - Migrator: the schema lifecycle contract with Up/Down/DownAll/
    Steps/Goto/Force plus the Version/Status/Info inspection set.
  - DefaultMigrator: the golang-migrate-backed implementation,
    constructed from a Config or via the factory helpers
    NewMigratorFromConfig, NewMigratorFromDatabaseConfig, and
    NewMigratorFromURL.
  - CLI: terminal-facing wrapper producing the formatted output of
    the migrate subcommands.

# Relationship to AutoMigrate

The escalation and history stores can create their own tables through
GORM's AutoMigrate for development and tests. Operated deployments
should prefer these versioned migrations; the two produce the same
tables, so either path yields a schema the stores accept.
*/
package migration
