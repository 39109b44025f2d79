package repository

import "embed"

// Migrations holds the goose migrations for the PostgreSQL store.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
