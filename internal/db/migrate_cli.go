package db

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
)

// MigrateActions lists the actions accepted by RunMigrate.
var MigrateActions = []string{"up", "down", "status", "to", "force"}

// RunMigrate performs a schema action on database and reports the outcome
// to out. The "to" and "force" actions take a version argument.
func RunMigrate(database *DB, action string, args []string, out io.Writer) error {
	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
	case "to", "force":
		if len(args) != 1 {
			return fmt.Errorf("migrate %s takes exactly one version argument", action)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version number %q", args[0])
		}
		if action == "to" {
			err = database.MigrateTo(uint(v))
		} else {
			err = database.MigrateForce(v)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema now at version %d\n", v)
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q (want one of %v)", action, MigrateActions)
	}
	return printMigrateStatus(database, out)
}

func printMigrateStatus(database *DB, out io.Writer) error {
	st, err := database.GetMigrationStatus()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	fmt.Fprintf(out, "Current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(out, "Latest version:  %d\n", st.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", st.Dirty)
	if st.Dirty {
		fmt.Fprintln(out, "A migration failed mid-execution. Inspect the database, then run: paramsweep migrate force <version>")
	} else if st.Pending() {
		fmt.Fprintf(out, "%d migration(s) pending. Run: paramsweep migrate up\n", st.LatestVersion-st.CurrentVersion)
	}
	return nil
}
